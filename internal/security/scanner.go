package security

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acgs2/agentbus/internal/constitutional"
	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/internal/tenant"
)

// suspiciousPatterns is the exact pattern set from
// original_source/runtime_security.py's SUSPICIOUS_PATTERNS: script tags,
// event handlers, SQL-injection verbs, path traversal, dynamic-eval
// markers, and OS-command execution markers.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=\s*["']`),
	regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop)\s+(all\s+)?(select|from|table|into)\b`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)base64_decode\s*\(`),
	regexp.MustCompile(`(?i)\beval\s*\(|\bexec\s*\(`),
	regexp.MustCompile(`__import__\s*\(`),
	regexp.MustCompile(`(?i)subprocess\.|os\.system\s*\(`),
}

// promptInjectionPatterns mirrors processor's closed set; the scanner's
// check is a superset check layered ahead of the processor's own screen
// (spec.md §4.9: "prompt-injection (superset of §4.2)").
var promptInjectionPatterns = regexp.MustCompile(`(?i)ignore (all )?previous instructions|system prompt (leak|override|manipulation)|do anything now|jailbreak|persona (adoption|override)|\(note to self: .*\)|\[INST\].*\[/INST\]`)

// windowEvent is one observation tracked for anomaly detection.
type windowEvent struct {
	eventType EventType
	at        time.Time
}

// Scanner runs the seven-stage pre-validation pipeline ahead of the
// processor, grounded in full on
// original_source/runtime_security.py::RuntimeSecurityScanner.
type Scanner struct {
	cfg     Config
	limiter RateLimiter
	logger  *zap.Logger

	mu           sync.Mutex
	anomalyWindow []windowEvent
	retainedEvents []Event
}

// NewScanner constructs a Scanner. A nil limiter falls back to an
// in-memory rate limiter; a nil logger falls back to zap.NewNop().
func NewScanner(cfg Config, limiter RateLimiter, logger *zap.Logger) *Scanner {
	if limiter == nil {
		limiter = NewInMemoryRateLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, limiter: limiter, logger: logger}
}

// Scan runs every enabled stage against msg in the fixed order: hash →
// tenant → rate limit → input sanitization → prompt injection →
// suspicious pattern → anomaly detection. The first blocking stage short-
// circuits the remaining ones (the bus and processor still run their own
// checks; this scanner is a defense-in-depth layer, not a replacement).
func (s *Scanner) Scan(msg *models.AgentMessage) *ScanResult {
	start := time.Now()
	result := newScanResult()
	checks := make([]string, 0, 7)

	if s.cfg.EnableConstitutionalValidation {
		checks = append(checks, "constitutional_hash")
		if ok, err := constitutional.Validate(msg.ConstitutionalHash, constitutional.DefaultHash); !ok {
			reason := "constitutional hash mismatch"
			if err != nil {
				reason = err.Error()
			}
			result.AddBlockingEvent(newEvent(EventHashMismatch, SeverityCritical, reason, msg.TenantID, msg.FromAgent, nil), reason)
			return s.finish(result, checks, start)
		}
	}

	if s.cfg.EnableTenantValidation {
		checks = append(checks, "tenant")
		normalized, valid := tenant.SanitizeAndValidate(msg.TenantID)
		if !valid {
			reason := fmt.Sprintf("invalid tenant id: %q", normalized)
			result.AddBlockingEvent(newEvent(EventTenantViolation, SeverityHigh, reason, msg.TenantID, msg.FromAgent, nil), reason)
			return s.finish(result, checks, start)
		}
	}

	if s.cfg.EnableRateLimitCheck {
		checks = append(checks, "rate_limit")
		key := tenant.Normalize(msg.TenantID) + ":" + msg.FromAgent
		rate, err := s.limiter.Record(context.Background(), key)
		if err != nil {
			if s.cfg.FailClosed {
				reason := "rate limiter unavailable: " + err.Error()
				result.AddBlockingEvent(newEvent(EventInvalidInput, SeverityHigh, reason, msg.TenantID, msg.FromAgent, nil), reason)
				return s.finish(result, checks, start)
			}
			result.AddWarning("rate limiter unavailable, proceeding fail-open: " + err.Error())
		} else if rate > s.cfg.RateLimitQPS {
			reason := fmt.Sprintf("rate limit exceeded: %d > %d qps", rate, s.cfg.RateLimitQPS)
			result.AddBlockingEvent(newEvent(EventRateLimitExceeded, SeverityMedium, reason, msg.TenantID, msg.FromAgent, map[string]any{"rate": rate}), reason)
			return s.finish(result, checks, start)
		}
	}

	text := contentText(msg)

	if s.cfg.EnableInputSanitization {
		checks = append(checks, "input_sanitization")
		if len(text) > s.cfg.MaxInputLength {
			reason := fmt.Sprintf("input length %d exceeds max %d", len(text), s.cfg.MaxInputLength)
			result.AddBlockingEvent(newEvent(EventInvalidInput, SeverityMedium, reason, msg.TenantID, msg.FromAgent, nil), reason)
			return s.finish(result, checks, start)
		}
		if depth := nestingDepth(msg.Content); depth > s.cfg.MaxNestedDepth {
			reason := fmt.Sprintf("content nesting depth %d exceeds max %d", depth, s.cfg.MaxNestedDepth)
			result.AddBlockingEvent(newEvent(EventInvalidInput, SeverityMedium, reason, msg.TenantID, msg.FromAgent, nil), reason)
			return s.finish(result, checks, start)
		}
	}

	if s.cfg.EnablePromptInjectionDetection {
		checks = append(checks, "prompt_injection")
		if promptInjectionPatterns.MatchString(text) {
			reason := "prompt injection pattern matched"
			result.AddBlockingEvent(newEvent(EventPromptInjection, SeverityCritical, reason, msg.TenantID, msg.FromAgent, nil), reason)
			return s.finish(result, checks, start)
		}
	}

	checks = append(checks, "suspicious_pattern")
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(text) {
			reason := "suspicious pattern matched: " + pattern.String()
			result.AddEvent(newEvent(EventSuspiciousPattern, SeverityHigh, reason, msg.TenantID, msg.FromAgent, nil))
			break
		}
	}

	if s.cfg.EnableAnomalyDetection {
		checks = append(checks, "anomaly_detection")
		if len(result.Events) > 0 && s.recordAndCheckAnomaly(msg, result.Events[0].Type) {
			result.AddEvent(newEvent(EventAnomalyDetected, SeverityHigh,
				fmt.Sprintf("%d+ events in %s window", s.cfg.AnomalyThresholdEvents, s.cfg.AnomalyWindow), msg.TenantID, msg.FromAgent, nil))
		}
	}

	return s.finish(result, checks, start)
}

func (s *Scanner) finish(result *ScanResult, checks []string, start time.Time) *ScanResult {
	result.ChecksPerformed = checks
	result.ScanDurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	s.retain(result.Events)
	for _, e := range result.Events {
		s.logger.Debug("security event", zap.String("type", string(e.Type)), zap.String("severity", string(e.Severity)))
	}
	return result
}

func (s *Scanner) retain(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retainedEvents = append(s.retainedEvents, events...)
	if max := s.cfg.MaxEventsRetained; max > 0 && len(s.retainedEvents) > max {
		s.retainedEvents = s.retainedEvents[len(s.retainedEvents)-max:]
	}
}

// RetainedEvents returns a snapshot of retained security events, newest
// last.
func (s *Scanner) RetainedEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.retainedEvents))
	copy(out, s.retainedEvents)
	return out
}

// recordAndCheckAnomaly records one security event in the sliding anomaly
// window and reports whether the threshold has been crossed. Scan calls it
// only for a scan that raised an event; clean scans are not counted.
func (s *Scanner) recordAndCheckAnomaly(msg *models.AgentMessage, eventType EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.cfg.AnomalyWindow)
	kept := s.anomalyWindow[:0]
	for _, e := range s.anomalyWindow {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, windowEvent{eventType: eventType, at: now})
	s.anomalyWindow = kept

	return len(kept) >= s.cfg.AnomalyThresholdEvents
}

func contentText(msg *models.AgentMessage) string {
	if msg.Content == nil {
		return ""
	}
	if text, ok := msg.Content["text"].(string); ok {
		return text
	}
	var parts []string
	for _, v := range msg.Content {
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func nestingDepth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		max := 0
		for _, inner := range t {
			if d := nestingDepth(inner); d > max {
				max = d
			}
		}
		return max + 1
	case []any:
		max := 0
		for _, inner := range t {
			if d := nestingDepth(inner); d > max {
				max = d
			}
		}
		return max + 1
	default:
		return 0
	}
}
