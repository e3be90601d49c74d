package security

import "time"

// Config tunes which scan stages run and their thresholds, grounded on
// RuntimeSecurityConfig.
type Config struct {
	EnablePromptInjectionDetection bool
	EnableTenantValidation         bool
	EnableRateLimitCheck           bool
	EnableConstitutionalValidation bool
	EnableAnomalyDetection         bool
	EnableInputSanitization        bool

	RateLimitQPS    int
	MaxInputLength  int
	MaxNestedDepth  int

	AnomalyWindow         time.Duration
	AnomalyThresholdEvents int

	EventRetention    time.Duration
	MaxEventsRetained int

	FailClosed bool
}

// DefaultConfig mirrors RuntimeSecurityConfig's field defaults exactly.
func DefaultConfig() Config {
	return Config{
		EnablePromptInjectionDetection: true,
		EnableTenantValidation:         true,
		EnableRateLimitCheck:           true,
		EnableConstitutionalValidation: true,
		EnableAnomalyDetection:         true,
		EnableInputSanitization:        true,

		RateLimitQPS:   100,
		MaxInputLength: 100000,
		MaxNestedDepth: 50,

		AnomalyWindow:          60 * time.Second,
		AnomalyThresholdEvents: 10,

		EventRetention:    time.Hour,
		MaxEventsRetained: 10000,

		FailClosed: true,
	}
}
