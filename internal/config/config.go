// Package config holds the bus's single immutable configuration object,
// built via functional options, matching the "Configuration Object pattern"
// of original_source/config.py's BusConfiguration dataclass.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acgs2/agentbus/internal/constitutional"
)

// BusConfiguration consolidates every option recognized by the bus
// (spec.md §6).
type BusConfiguration struct {
	RedisURL             string
	KafkaBootstrapServers string
	AuditServiceURL       string

	UseDynamicPolicy bool
	// PolicyFailClosed defaults to true (see DESIGN.md Open Question (e)).
	PolicyFailClosed bool
	UseKafka         bool
	UseRedisRegistry bool
	UseNativeBackend bool
	EnableMetering   bool

	EnableMACI     bool
	MACIStrictMode bool

	ConstitutionalHash string

	// ImpactThreshold routes a message to the deliberation lane when its
	// impact score is at or above this value (spec.md §4.5 default 0.8).
	ImpactThreshold float64

	PolicyClientTimeout time.Duration
	DeliberationTimeout time.Duration
}

// Option mutates a BusConfiguration during construction (builder pattern).
type Option func(*BusConfiguration)

// New builds a BusConfiguration with production-sane defaults and applies
// opts in order.
func New(opts ...Option) *BusConfiguration {
	cfg := &BusConfiguration{
		RedisURL:              "redis://localhost:6379",
		KafkaBootstrapServers: "localhost:9092",
		AuditServiceURL:       "http://localhost:8001",
		PolicyFailClosed:      true,
		UseNativeBackend:      true,
		EnableMetering:        true,
		EnableMACI:            true,
		MACIStrictMode:        true,
		ConstitutionalHash:    constitutional.DefaultHash,
		ImpactThreshold:       0.8,
		PolicyClientTimeout:   5 * time.Second,
		DeliberationTimeout:   300 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ConstitutionalHash == "" {
		cfg.ConstitutionalHash = constitutional.DefaultHash
	}
	return cfg
}

func WithRedisURL(url string) Option { return func(c *BusConfiguration) { c.RedisURL = url } }
func WithUseDynamicPolicy(v bool) Option {
	return func(c *BusConfiguration) { c.UseDynamicPolicy = v }
}
func WithPolicyFailClosed(v bool) Option {
	return func(c *BusConfiguration) { c.PolicyFailClosed = v }
}
func WithMACI(enabled, strict bool) Option {
	return func(c *BusConfiguration) { c.EnableMACI = enabled; c.MACIStrictMode = strict }
}
func WithImpactThreshold(t float64) Option {
	return func(c *BusConfiguration) { c.ImpactThreshold = t }
}

// ForTesting disables optional features for fast, isolated unit tests —
// mirrors original_source/config.py::BusConfiguration.for_testing.
func ForTesting() *BusConfiguration {
	return New(func(c *BusConfiguration) {
		c.UseDynamicPolicy = false
		c.PolicyFailClosed = false
		c.UseKafka = false
		c.UseRedisRegistry = false
		c.UseNativeBackend = false
		c.EnableMetering = false
		c.EnableMACI = false
		c.MACIStrictMode = false
	})
}

// ForProduction enables every security feature, per spec.md §6's
// "production preset must have all security features on".
func ForProduction() *BusConfiguration {
	return New(func(c *BusConfiguration) {
		c.UseDynamicPolicy = true
		c.PolicyFailClosed = true
		c.UseKafka = true
		c.UseRedisRegistry = true
		c.UseNativeBackend = true
		c.EnableMetering = true
		c.EnableMACI = true
		c.MACIStrictMode = true
	})
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseFloat(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FromEnvironment loads configuration from environment variables, matching
// original_source/config.py::BusConfiguration.from_environment's variable
// names.
func FromEnvironment() *BusConfiguration {
	return New(func(c *BusConfiguration) {
		c.RedisURL = getenv("REDIS_URL", c.RedisURL)
		c.KafkaBootstrapServers = getenv("KAFKA_BOOTSTRAP_SERVERS", c.KafkaBootstrapServers)
		c.AuditServiceURL = getenv("AUDIT_SERVICE_URL", c.AuditServiceURL)
		c.UseDynamicPolicy = parseBool(os.Getenv("USE_DYNAMIC_POLICY"), c.UseDynamicPolicy)
		c.PolicyFailClosed = parseBool(os.Getenv("POLICY_FAIL_CLOSED"), c.PolicyFailClosed)
		c.UseKafka = parseBool(os.Getenv("USE_KAFKA"), c.UseKafka)
		c.UseRedisRegistry = parseBool(os.Getenv("USE_REDIS_REGISTRY"), c.UseRedisRegistry)
		c.UseNativeBackend = parseBool(os.Getenv("USE_NATIVE_BACKEND"), c.UseNativeBackend)
		c.EnableMetering = parseBool(os.Getenv("ENABLE_METERING"), c.EnableMetering)
		c.EnableMACI = parseBool(os.Getenv("ENABLE_MACI"), c.EnableMACI)
		c.MACIStrictMode = parseBool(os.Getenv("MACI_STRICT_MODE"), c.MACIStrictMode)
		c.ImpactThreshold = parseFloat(os.Getenv("IMPACT_THRESHOLD"), c.ImpactThreshold)
	})
}

// yamlShape mirrors BusConfiguration's fields for YAML decoding.
type yamlShape struct {
	RedisURL              string  `yaml:"redis_url"`
	KafkaBootstrapServers string  `yaml:"kafka_bootstrap_servers"`
	AuditServiceURL       string  `yaml:"audit_service_url"`
	UseDynamicPolicy      bool    `yaml:"use_dynamic_policy"`
	PolicyFailClosed      *bool   `yaml:"policy_fail_closed"`
	UseKafka              bool    `yaml:"use_kafka"`
	UseRedisRegistry      bool    `yaml:"use_redis_registry"`
	UseNativeBackend      *bool   `yaml:"use_native_backend"`
	EnableMetering        *bool   `yaml:"enable_metering"`
	EnableMACI            *bool   `yaml:"enable_maci"`
	MACIStrictMode        *bool   `yaml:"maci_strict_mode"`
	ImpactThreshold       float64 `yaml:"impact_threshold"`
}

// FromYAML loads configuration from a YAML document, overlaying it on top
// of defaults.
func FromYAML(data []byte) (*BusConfiguration, error) {
	var shape yamlShape
	if err := yaml.Unmarshal(data, &shape); err != nil {
		return nil, err
	}
	cfg := New()
	if shape.RedisURL != "" {
		cfg.RedisURL = shape.RedisURL
	}
	if shape.KafkaBootstrapServers != "" {
		cfg.KafkaBootstrapServers = shape.KafkaBootstrapServers
	}
	if shape.AuditServiceURL != "" {
		cfg.AuditServiceURL = shape.AuditServiceURL
	}
	cfg.UseDynamicPolicy = shape.UseDynamicPolicy
	if shape.PolicyFailClosed != nil {
		cfg.PolicyFailClosed = *shape.PolicyFailClosed
	}
	cfg.UseKafka = shape.UseKafka
	cfg.UseRedisRegistry = shape.UseRedisRegistry
	if shape.UseNativeBackend != nil {
		cfg.UseNativeBackend = *shape.UseNativeBackend
	}
	if shape.EnableMetering != nil {
		cfg.EnableMetering = *shape.EnableMetering
	}
	if shape.EnableMACI != nil {
		cfg.EnableMACI = *shape.EnableMACI
	}
	if shape.MACIStrictMode != nil {
		cfg.MACIStrictMode = *shape.MACIStrictMode
	}
	if shape.ImpactThreshold > 0 {
		cfg.ImpactThreshold = shape.ImpactThreshold
	}
	return cfg, nil
}
