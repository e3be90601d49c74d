// Package bus implements the agent bus front door: the sole entry point
// external callers use to register agents and send, broadcast, and
// receive messages, grounded on
// original_source/agent_bus.py::EnhancedAgentBus and cross-grounded on
// teacher core/noa.go for the Start/Stop lifecycle and graceful-shutdown
// shape.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/acgs2/agentbus/internal/config"
	"github.com/acgs2/agentbus/internal/constitutional"
	"github.com/acgs2/agentbus/internal/deliberation"
	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/impact"
	"github.com/acgs2/agentbus/internal/maci"
	"github.com/acgs2/agentbus/internal/metrics"
	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/internal/processor"
	"github.com/acgs2/agentbus/internal/redact"
	"github.com/acgs2/agentbus/internal/registry"
	"github.com/acgs2/agentbus/internal/security"
	"github.com/acgs2/agentbus/internal/strategies"
	"github.com/acgs2/agentbus/internal/tenant"
	"github.com/acgs2/agentbus/pkg/audit"
	"github.com/acgs2/agentbus/pkg/opaengine"
	"github.com/acgs2/agentbus/pkg/policyclient"
	"github.com/acgs2/agentbus/pkg/transport"
)

// State is the bus's own lifecycle, distinct from any individual message's
// Status.
type State string

const (
	StateUnstarted State = "unstarted"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
)

// TokenValidator is the narrow collaborator RegisterAgent consults when an
// auth_token is presented, replacing a direct dependency on the full
// policy-client surface (spec.md §9: "components consume narrow
// interfaces").
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
}

// HealthReporter lets an optional collaborator (typically the policy
// client) contribute to GetMetricsAsync's health payload.
type HealthReporter interface {
	HealthCheck(ctx context.Context) (map[string]any, error)
}

// RequiresHumanFunc decides, per message, whether a deliberation task must
// also wait on a human decision in addition to agent votes. The zero value
// never requires human review.
type RequiresHumanFunc func(*models.AgentMessage) bool

// Bus is the agent bus front door.
type Bus struct {
	cfg    *config.BusConfiguration
	logger *logrus.Entry

	registry     registry.Registry
	router       registry.Router
	maciRegistry *maci.RoleRegistry
	processor    *processor.Processor
	impactRouter *impact.Router
	delib        *deliberation.Orchestrator
	scanner      *security.Scanner
	transport    transport.Adapter
	auditSink    audit.Sink
	metrics      *metrics.Collectors
	auth         TokenValidator
	health       HealthReporter
	requiresHuman RequiresHumanFunc

	policyClient  policyclient.Client
	opaEngine     opaengine.Engine
	nativeBackend strategies.NativeBackend
	guardPolicy   deliberation.GuardPolicyFunc

	requiredVotes      int
	deliberationPoll    time.Duration

	queue  chan *models.AgentMessage

	mu    sync.Mutex
	state State

	sent      int64
	delivered int64
	failed    int64
}

// Option customizes Bus construction.
type Option func(*Bus)

func WithRegistry(r registry.Registry) Option { return func(b *Bus) { b.registry = r } }
func WithRouter(r registry.Router) Option      { return func(b *Bus) { b.router = r } }
func WithProcessor(p *processor.Processor) Option {
	return func(b *Bus) { b.processor = p }
}
func WithImpactRouter(r *impact.Router) Option { return func(b *Bus) { b.impactRouter = r } }
func WithDeliberation(o *deliberation.Orchestrator) Option {
	return func(b *Bus) { b.delib = o }
}
func WithScanner(s *security.Scanner) Option       { return func(b *Bus) { b.scanner = s } }
func WithTransport(t transport.Adapter) Option     { return func(b *Bus) { b.transport = t } }
func WithAuditSink(s audit.Sink) Option            { return func(b *Bus) { b.auditSink = s } }
func WithMetrics(m *metrics.Collectors) Option     { return func(b *Bus) { b.metrics = m } }
func WithAuthValidator(v TokenValidator) Option    { return func(b *Bus) { b.auth = v } }
func WithHealthReporter(h HealthReporter) Option   { return func(b *Bus) { b.health = h } }
func WithRequiresHuman(f RequiresHumanFunc) Option { return func(b *Bus) { b.requiresHuman = f } }
func WithRequiredVotes(n int) Option               { return func(b *Bus) { b.requiredVotes = n } }
func WithPolicyClient(c policyclient.Client) Option { return func(b *Bus) { b.policyClient = c } }
func WithOPAEngine(e opaengine.Engine) Option       { return func(b *Bus) { b.opaEngine = e } }
func WithNativeBackend(nb strategies.NativeBackend) Option {
	return func(b *Bus) { b.nativeBackend = nb }
}

// WithGuardPolicy overrides the verify-before-act gate ProcessMessage
// consults before admitting a deliberation-lane message to the vote
// queue. Pass nil (or omit the option) to disable the guard gate entirely
// and fall back to plain vote-queue behavior.
func WithGuardPolicy(p deliberation.GuardPolicyFunc) Option {
	return func(b *Bus) { b.guardPolicy = p }
}
func WithQueueSize(n int) Option {
	return func(b *Bus) { b.queue = make(chan *models.AgentMessage, n) }
}
func WithLogger(l *logrus.Entry) Option { return func(b *Bus) { b.logger = l } }

// New constructs a Bus with production-sane defaults for any collaborator
// not supplied via Option, mirroring EnhancedAgentBus.__init__'s wiring
// order: registry, MACI registry, strategy chain, processor, impact
// scorer/router, deliberation orchestrator.
func New(cfg *config.BusConfiguration, opts ...Option) *Bus {
	if cfg == nil {
		cfg = config.New()
	}
	b := &Bus{
		cfg:           cfg,
		state:         StateUnstarted,
		maciRegistry:  maci.NewRoleRegistry(),
		requiredVotes: 3,
		deliberationPoll: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		b.logger = logrus.NewEntry(l).WithField("component", "agentbus")
	}
	if b.registry == nil {
		b.registry = registry.NewInMemoryRegistry(cfg.ConstitutionalHash)
	}
	if b.router == nil {
		b.router = registry.NewDirectRouter()
	}
	if b.processor == nil {
		strat := b.defaultStrategy()
		p, err := processor.New(strat)
		if err != nil {
			// lru.New only fails on a non-positive size, which New never
			// passes; a default-construction failure here is a
			// programmer error, not a runtime condition to fail open on.
			panic(fmt.Sprintf("agentbus: default processor construction: %v", err))
		}
		b.processor = p
	}
	if b.impactRouter == nil {
		scorer := impact.NewScorer(impact.DefaultWeights, cfg.ImpactThreshold, time.Minute)
		b.impactRouter = impact.NewRouter(scorer, nil)
	}
	if b.delib == nil {
		queue := deliberation.NewQueue(0.66, cfg.DeliberationTimeout)
		guard := deliberation.NewGuard()
		b.delib = deliberation.NewOrchestrator(queue, guard)
	}
	if b.guardPolicy != nil {
		b.delib.GuardPolicy = b.guardPolicy
	}
	if b.auditSink == nil {
		b.auditSink = audit.NopSink{}
	}
	if b.queue == nil {
		b.queue = make(chan *models.AgentMessage, 1024)
	}
	if b.requiresHuman == nil {
		b.requiresHuman = func(*models.AgentMessage) bool { return false }
	}
	return b
}

// defaultStrategy assembles the production processing chain, grounded on
// original_source/processing_strategies.py: role-separation
// (MACIProcessingStrategy) wraps a CompositeProcessingStrategy that tries
// native, dynamic-policy, external-policy-engine (OPA), and the
// python-equivalent static-hash strategy in that order, falling back
// between them only on a system fault (spec.md §2/§4.3). Native and
// dynamic-policy are only added to the chain when their config flags are
// set; OPA joins whenever an engine was supplied via WithOPAEngine. The
// static-hash strategy is always last and always available, so the
// composite always has a floor.
func (b *Bus) defaultStrategy() strategies.ValidationStrategy {
	cfg := b.cfg
	chain := make([]strategies.ValidationStrategy, 0, 4)

	if cfg.UseNativeBackend {
		backend := b.nativeBackend
		if backend == nil {
			backend = strategies.NewGoNativeBackend()
		}
		chain = append(chain, strategies.NewNativeStrategy(backend, nil))
	}
	if cfg.UseDynamicPolicy && b.policyClient != nil {
		chain = append(chain, strategies.NewDynamicPolicyStrategy(b.policyClient))
	}
	if b.opaEngine != nil {
		chain = append(chain, strategies.NewOPAStrategy(b.opaEngine))
	}
	chain = append(chain, strategies.NewStaticHashStrategy(true))

	var strat strategies.ValidationStrategy = strategies.NewCompositeStrategy(chain...)
	if cfg.EnableMACI {
		enforcer := maci.NewEnforcer(b.maciRegistry, cfg.MACIStrictMode)
		strat = strategies.NewMACIWrapperStrategy(strat, enforcer)
	}
	return strat
}

// Start transitions the bus to Running. Idempotent: calling Start on an
// already-Running bus is a no-op that returns success (spec.md §4.1).
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateRunning {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStarting
	b.mu.Unlock()

	if b.transport != nil {
		if err := b.transport.Start(ctx); err != nil {
			b.mu.Lock()
			b.state = StateUnstarted
			b.mu.Unlock()
			return fmt.Errorf("%w: start transport: %s", errs.ErrHandlerFailed, redact.String(err.Error()))
		}
	}

	b.mu.Lock()
	b.state = StateRunning
	b.mu.Unlock()
	b.logger.Info("agent bus started")
	return nil
}

// Stop transitions the bus to Stopped. Safe to call before Start, and
// idempotent thereafter.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateStopped || b.state == StateUnstarted {
		b.state = StateStopped
		b.mu.Unlock()
		return nil
	}
	b.state = StateStopping
	b.mu.Unlock()

	if b.transport != nil {
		if err := b.transport.Stop(ctx); err != nil {
			b.logger.WithError(err).Warn("error stopping transport")
		}
	}
	b.delib.Queue.Stop()

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()
	b.logger.Info("agent bus stopped")
	return nil
}

// State reports the bus's current lifecycle state.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bus) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateRunning
}

// RegisterAgent validates identity (via an auth token, if present),
// normalizes the tenant, and inserts the agent into both the agent
// registry and the MACI role registry. Re-registration of an existing id
// with an incompatible role fails without mutating prior state.
func (b *Bus) RegisterAgent(ctx context.Context, agentID, agentType string, capabilities []string, tenantID string, maciRole models.MACIRole, authToken string) (bool, error) {
	if authToken != "" {
		if b.auth == nil {
			return false, nil
		}
		ok, err := b.auth.ValidateToken(ctx, authToken)
		if err != nil || !ok {
			return false, nil
		}
	}

	normalizedTenant, err := tenant.ValidateTenantID(tenantID)
	if err != nil {
		b.logger.WithError(err).Debug("rejecting agent registration")
		return false, nil
	}

	if maciRole != "" {
		if existing, ok := b.maciRegistry.GetAgent(agentID); ok && existing.Role != maciRole {
			return false, nil
		}
	}

	capMap := make(map[string]any, len(capabilities))
	for _, c := range capabilities {
		capMap[c] = true
	}
	metadata := map[string]any{"agent_type": agentType}
	if normalizedTenant != "" {
		metadata["tenant_id"] = normalizedTenant
	}

	ok, err := b.registry.Register(ctx, agentID, capMap, metadata)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if maciRole != "" {
		b.maciRegistry.RegisterAgent(agentID, maciRole)
	}
	return true, nil
}

// UnregisterAgent removes an agent from the registry and its MACI role
// binding. Calling it twice for the same id returns true then false.
func (b *Bus) UnregisterAgent(ctx context.Context, agentID string) (bool, error) {
	ok, err := b.registry.Unregister(ctx, agentID)
	if err != nil {
		return false, err
	}
	if ok {
		b.maciRegistry.UnregisterAgent(agentID)
	}
	return ok, nil
}

func (b *Bus) tenantOf(ctx context.Context, agentID string) string {
	if agentID == "" {
		return ""
	}
	rec, ok, err := b.registry.Get(ctx, agentID)
	if err != nil || !ok {
		return ""
	}
	if t, ok := rec.Metadata["tenant_id"].(string); ok {
		return t
	}
	return rec.TenantID
}

// SendMessage runs a message through hash validation, tenant consistency,
// the processing strategy chain, impact-based routing, and (when
// escalated) deliberation, before delivering it. It never panics or
// returns a bare error for ordinary rejection — every outcome is a
// ValidationResult, per spec.md §4.2's "never raises across the strategy
// boundary" contract extended to the bus's own public surface.
func (b *Bus) SendMessage(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	msg.Status = models.StatusProcessing

	// Step 1: if stopped, count the attempt but still permit transport-
	// less delivery via the in-process queue, preserving test semantics
	// (spec.md §4.1).
	atomic.AddInt64(&b.sent, 1)
	if b.metrics != nil {
		b.metrics.IncSent(msg.TenantID)
	}

	if b.scanner != nil {
		if scan := b.scanner.Scan(msg); scan.Blocked {
			return b.reject(msg, scan.BlockReason, "security_scan"), nil
		}
	}

	// Step 2: constant-time constitutional hash check.
	if ok, _ := constitutional.Validate(msg.ConstitutionalHash, b.cfg.ConstitutionalHash); !ok {
		reason := fmt.Sprintf("Constitutional hash mismatch: %s", constitutional.Truncate(msg.ConstitutionalHash))
		return b.reject(msg, reason, "hash_mismatch"), nil
	}
	msg.ConstitutionalValidated = true

	// Step 3: tenant normalization + format check.
	normalizedTenant, tenantErr := tenant.ValidateTenantID(msg.TenantID)
	if tenantErr != nil {
		return b.reject(msg, tenantErr.Error(), "invalid_tenant"), nil
	}
	msg.TenantID = normalizedTenant

	// Step 4: tenant-consistency check across from/to agents.
	senderTenant := b.tenantOf(ctx, msg.FromAgent)
	recipientTenant := ""
	if !msg.IsBroadcast() {
		recipientTenant = b.tenantOf(ctx, msg.ToAgent)
	}
	if errs := tenant.CheckConsistency(senderTenant, recipientTenant, msg.TenantID); len(errs) > 0 {
		result := models.ValidationResult{ConstitutionalHash: msg.ConstitutionalHash, Decision: models.DecisionDeny}
		for _, e := range errs {
			result.AddError(e.Error())
		}
		b.markFailed(msg, "tenant_inconsistent")
		return result, nil
	}

	// Step 5: delegate to processor.
	result, err := b.processor.Process(ctx, msg)
	if err != nil {
		res := models.NewDeniedResult(msg.ConstitutionalHash, "processing error: "+err.Error())
		res.SetMetadata("governance_mode", "DEGRADED")
		b.logger.WithError(err).WithField("message_id", msg.MessageID).Error("processor fault, falling back to degraded mode")
		b.markFailed(msg, "processor_exception")
		return res, nil
	}
	if !result.IsValid {
		b.markFailed(msg, "validation_denied")
		return result, nil
	}
	msg.Status = models.StatusValidated

	// Step 6: route and deliver, escalating to deliberation first when the
	// impact router says so.
	analysis, lane := b.impactRouter.Route(msg)
	if lane == impact.LaneDeliberation {
		msg.Status = models.StatusPendingDeliberation
		outcome := b.delib.ProcessMessage(msg, analysis, b.requiresHuman(msg), b.requiredVotes, b.cfg.DeliberationTimeout, b.deliberationPoll)
		if b.metrics != nil {
			b.metrics.IncDeliberationTask(string(outcome.Status))
		}
		if !outcome.Approved {
			result.AddError(fmt.Sprintf("deliberation task %s ended as %s", outcome.TaskID, outcome.Status))
			b.logger.WithError(outcome.Err()).WithField("message_id", msg.MessageID).Debug("deliberation did not approve message")
			b.markFailed(msg, "deliberation_"+string(outcome.Status))
			return result, nil
		}
	}

	delivered, derr := b.routeAndDeliver(ctx, msg)
	if derr != nil || !delivered {
		result.AddError("delivery failed: no reachable route")
		if derr != nil {
			b.logger.WithError(derr).WithField("message_id", msg.MessageID).Warn("delivery failed")
		}
		b.markFailed(msg, "undeliverable")
		return result, nil
	}

	msg.Status = models.StatusDelivered
	atomic.AddInt64(&b.delivered, 1)
	if b.metrics != nil {
		b.metrics.IncDelivered(msg.TenantID, string(lane))
	}
	b.recordAudit(ctx, msg, result)
	return result, nil
}

func (b *Bus) reject(msg *models.AgentMessage, reason, metricReason string) models.ValidationResult {
	result := models.NewDeniedResult(msg.ConstitutionalHash, reason)
	b.logger.WithError(result.Err()).WithField("message_id", msg.MessageID).Debug("message rejected")
	b.markFailed(msg, metricReason)
	return result
}

func (b *Bus) markFailed(msg *models.AgentMessage, reason string) {
	msg.Status = models.StatusFailed
	atomic.AddInt64(&b.failed, 1)
	if b.metrics != nil {
		b.metrics.IncFailed(msg.TenantID, reason)
	}
}

func (b *Bus) recordAudit(ctx context.Context, msg *models.AgentMessage, result models.ValidationResult) {
	if b.auditSink == nil {
		return
	}
	rec := audit.NewValidationRecord(msg, result)
	if _, err := b.auditSink.Record(ctx, rec); err != nil {
		b.logger.WithError(err).Warn("audit sink record failed")
	}
}

// routeAndDeliver resolves the message's target via the configured
// Router, then prefers the attached transport over the in-process queue
// when one is set (spec.md §6).
func (b *Bus) routeAndDeliver(ctx context.Context, msg *models.AgentMessage) (bool, error) {
	target, ok, err := b.router.Route(ctx, msg, b.registry)
	if err != nil {
		return false, fmt.Errorf("%w: routing: %w", errs.ErrHandlerFailed, err)
	}
	if !ok {
		return false, nil
	}
	msg.ToAgent = target

	if b.transport != nil {
		delivered, err := b.transport.SendMessage(ctx, msg)
		if err != nil {
			return false, fmt.Errorf("%w: transport delivery: %w", errs.ErrHandlerFailed, err)
		}
		return delivered, nil
	}

	select {
	case b.queue <- msg:
		return true, nil
	default:
		return false, nil
	}
}

// BroadcastMessage fans a message out to every registered agent in the
// sender's tenant, excluding the sender, reusing SendMessage's contract
// per-target.
func (b *Bus) BroadcastMessage(ctx context.Context, msg *models.AgentMessage) ([]models.ValidationResult, error) {
	senderTenant := msg.TenantID
	if senderTenant == "" {
		senderTenant = b.tenantOf(ctx, msg.FromAgent)
	}
	targets, err := b.router.Broadcast(ctx, msg, b.registry, nil, senderTenant)
	if err != nil {
		return nil, err
	}
	results := make([]models.ValidationResult, 0, len(targets))
	for _, target := range targets {
		clone := *msg
		clone.MessageID = uuid.NewString()
		clone.ToAgent = target
		result, _ := b.SendMessage(ctx, &clone)
		results = append(results, result)
	}
	return results, nil
}

// ReceiveMessage blocks up to timeout for a message delivered to the
// in-process queue, returning (nil, false) on timeout.
func (b *Bus) ReceiveMessage(timeout time.Duration) (*models.AgentMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-b.queue:
		if !ok {
			return nil, false
		}
		return msg, true
	case <-timer.C:
		return nil, false
	}
}

// Metrics is the bus-level aggregated counter snapshot returned by
// GetMetrics.
type Metrics struct {
	MessagesSent      int64
	MessagesDelivered int64
	MessagesFailed    int64
	QueueDepth        int
	Processor         processor.Metrics
	State             State
}

// GetMetrics returns aggregated counters and processor-level stats.
func (b *Bus) GetMetrics() Metrics {
	return Metrics{
		MessagesSent:      atomic.LoadInt64(&b.sent),
		MessagesDelivered: atomic.LoadInt64(&b.delivered),
		MessagesFailed:    atomic.LoadInt64(&b.failed),
		QueueDepth:        len(b.queue),
		Processor:         b.processor.Metrics(),
		State:             b.State(),
	}
}

// AsyncMetrics additionally reports the health of an attached policy
// client (or other HealthReporter collaborator).
type AsyncMetrics struct {
	Metrics
	PolicyClientHealth map[string]any
}

// GetMetricsAsync extends GetMetrics with a policy-client health check.
func (b *Bus) GetMetricsAsync(ctx context.Context) AsyncMetrics {
	out := AsyncMetrics{Metrics: b.GetMetrics()}
	if b.health != nil {
		if health, err := b.health.HealthCheck(ctx); err == nil {
			out.PolicyClientHealth = health
		} else {
			out.PolicyClientHealth = map[string]any{"status": "error", "error": err.Error()}
		}
	}
	return out
}
