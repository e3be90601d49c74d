// Package security implements the runtime security scanner: a pipeline of
// cheap, synchronous checks run on every inbound message, grounded on
// original_source/runtime_security.py's RuntimeSecurityScanner.
package security

import (
	"time"

	"github.com/acgs2/agentbus/internal/constitutional"
)

// EventType tags the kind of security event observed.
type EventType string

const (
	EventPromptInjection     EventType = "prompt_injection_attempt"
	EventTenantViolation     EventType = "tenant_violation"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventHashMismatch        EventType = "constitutional_hash_mismatch"
	EventPermissionDenied    EventType = "permission_denied"
	EventInvalidInput        EventType = "invalid_input"
	EventAnomalyDetected     EventType = "anomaly_detected"
	EventSuspiciousPattern   EventType = "suspicious_pattern"
)

// Severity ranks an event's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single observation recorded by the scanner.
type Event struct {
	Type               EventType
	Severity           Severity
	Message            string
	Timestamp          time.Time
	TenantID           string
	AgentID            string
	Metadata           map[string]any
	ConstitutionalHash string
}

func newEvent(t EventType, sev Severity, msg, tenantID, agentID string, metadata map[string]any) Event {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{
		Type:               t,
		Severity:           sev,
		Message:            msg,
		Timestamp:          time.Now().UTC(),
		TenantID:           tenantID,
		AgentID:            agentID,
		Metadata:           metadata,
		ConstitutionalHash: constitutional.DefaultHash,
	}
}

// ScanResult is the outcome of a full scan pass.
type ScanResult struct {
	IsSecure        bool
	Events          []Event
	Blocked         bool
	BlockReason     string
	ScanDurationMs  float64
	ChecksPerformed []string
	Warnings        []string
}

// AddEvent records a non-blocking event; HIGH/CRITICAL severities flip
// IsSecure to false without necessarily blocking the request.
func (r *ScanResult) AddEvent(e Event) {
	r.Events = append(r.Events, e)
	if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
		r.IsSecure = false
	}
}

// AddBlockingEvent records an event and blocks the request outright.
func (r *ScanResult) AddBlockingEvent(e Event, reason string) {
	r.AddEvent(e)
	r.Blocked = true
	r.BlockReason = reason
}

func newScanResult() *ScanResult {
	return &ScanResult{IsSecure: true}
}
