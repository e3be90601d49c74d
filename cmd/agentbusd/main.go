// Command agentbusd is the bus's composition root: it wires configuration,
// the registry, processor, impact router, and deliberation orchestrator
// into a bus.Bus, then exposes a minimal ops HTTP surface, grounded on
// teacher core/noa.go's NewNOACore/Start lifecycle (domain routes dropped,
// health/metrics/signal-shutdown skeleton kept).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/acgs2/agentbus/internal/bus"
	"github.com/acgs2/agentbus/internal/config"
	"github.com/acgs2/agentbus/internal/metrics"
	"github.com/acgs2/agentbus/internal/recovery"
	"github.com/acgs2/agentbus/internal/registry"
	"github.com/acgs2/agentbus/internal/security"
	"github.com/acgs2/agentbus/pkg/policyclient"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}
	entry := logger.WithField("component", "agentbusd")

	cfg := config.FromEnvironment()

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	var agentRegistry registry.Registry = registry.NewInMemoryRegistry(cfg.ConstitutionalHash)
	if cfg.UseRedisRegistry {
		redisRegistry, err := registry.NewRedisRegistry(cfg.RedisURL, cfg.ConstitutionalHash)
		if err != nil {
			entry.WithError(err).Fatal("failed to connect to redis registry")
		}
		agentRegistry = redisRegistry
	}

	var policyClient policyclient.Client
	if cfg.UseDynamicPolicy {
		policyClient = policyclient.NewHTTPClient(cfg.AuditServiceURL, getenv("POLICY_API_KEY", ""))
	}

	scanner := security.NewScanner(security.DefaultConfig(), security.NewInMemoryRateLimiter(), nil)

	recoveryLogger, _ := zap.NewProduction()
	recoveryOrchestrator := recovery.New(5*time.Second, recoveryLogger)
	if redisRegistry, ok := agentRegistry.(*registry.RedisRegistry); ok {
		recoveryOrchestrator.Register("redis_registry", 0, recovery.DefaultPolicy(), redisRegistry.Ping)
	}
	if policyClient != nil {
		recoveryOrchestrator.Register("policy_registry", 1, recovery.DefaultPolicy(), func(ctx context.Context) error {
			_, err := policyClient.GetPolicy(ctx, "core_health_probe")
			return err
		})
	}
	recoveryOrchestrator.Start(context.Background())
	defer recoveryOrchestrator.Stop()

	opts := []bus.Option{
		bus.WithRegistry(agentRegistry),
		bus.WithMetrics(collectors),
		bus.WithScanner(scanner),
		bus.WithLogger(entry),
	}
	if policyClient != nil {
		opts = append(opts, bus.WithHealthReporter(policyHealthAdapter{policyClient}))
		opts = append(opts, bus.WithPolicyClient(policyClient))
	}
	opts = append(opts, bus.WithGuardPolicy(bus.DefaultGuardPolicy))
	agentBus := bus.New(cfg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agentBus.Start(ctx); err != nil {
		entry.WithError(err).Fatal("failed to start agent bus")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/healthz", healthHandler(agentBus))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/debug/registry", debugRegistryHandler(agentRegistry))

	srv := &http.Server{
		Addr:    ":" + getenv("SERVER_PORT", "8080"),
		Handler: router,
	}

	go func() {
		entry.Infof("agentbusd listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("ops server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	entry.Info("shutting down agentbusd")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Error("ops server forced to shutdown")
	}
	if err := agentBus.Stop(shutdownCtx); err != nil {
		entry.WithError(err).Error("agent bus forced to shutdown")
	}
	entry.Info("agentbusd stopped")
}

func healthHandler(b *bus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := b.State()
		body := gin.H{"status": "healthy", "bus_state": state}
		if state != bus.StateRunning {
			body["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

func debugRegistryHandler(reg registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := reg.ListAgents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
	}
}

// corsMiddleware mirrors teacher core/noa.go's corsMiddleware, kept
// identical since the ops surface has the same local-tooling CORS needs.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func getenv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// policyHealthAdapter adapts a policyclient.Client into bus.HealthReporter
// by treating a successful fetch of a well-known probe policy as healthy.
type policyHealthAdapter struct {
	client policyclient.Client
}

func (p policyHealthAdapter) HealthCheck(ctx context.Context) (map[string]any, error) {
	_, err := p.client.GetPolicy(ctx, "core_health_probe")
	if err != nil {
		return map[string]any{"status": "degraded", "fail_closed": p.client.FailClosed()}, err
	}
	return map[string]any{"status": "ok"}, nil
}
