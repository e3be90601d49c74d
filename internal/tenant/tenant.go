// Package tenant implements normalization, format validation, and
// cross-edge consistency checks for tenant identifiers (spec.md §4.8).
package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/acgs2/agentbus/internal/errs"
)

var idPattern = regexp.MustCompile(`^[a-z0-9_-]{3,64}$`)

// Normalize trims whitespace, lowercases, and treats an empty result as
// absent (empty string). Normalize is idempotent: Normalize(Normalize(t))
// == Normalize(t) for all t.
func Normalize(tenantID string) string {
	n := strings.ToLower(strings.TrimSpace(tenantID))
	return n
}

// Validate reports whether an already-normalized tenant id satisfies the
// format rule. An absent (empty) tenant id is valid — absence is a
// legitimate state, not a format violation.
func Validate(normalized string) bool {
	if normalized == "" {
		return true
	}
	return idPattern.MatchString(normalized)
}

// SanitizeAndValidate normalizes then validates in one step.
func SanitizeAndValidate(tenantID string) (string, bool) {
	n := Normalize(tenantID)
	return n, Validate(n)
}

// ValidateTenantID normalizes tenantID and returns a wrapped
// errs.ErrInvalidTenant when the result fails format validation, so
// callers that want to log or propagate a typed cause (rather than a bare
// bool) have one.
func ValidateTenantID(tenantID string) (string, error) {
	n, ok := SanitizeAndValidate(tenantID)
	if !ok {
		return n, fmt.Errorf("%w: %q", errs.ErrInvalidTenant, tenantID)
	}
	return n, nil
}

// CheckConsistency enforces spec.md §4.8: after normalization the sender
// tenant must equal the message tenant (both may be absent), and a
// non-empty recipient tenant must equal the message tenant; an absent
// recipient tenant is not compared. It returns one error per offending
// edge.
func CheckConsistency(senderTenant, recipientTenant, messageTenant string) []error {
	s := Normalize(senderTenant)
	r := Normalize(recipientTenant)
	m := Normalize(messageTenant)

	var out []error
	if s != m {
		out = append(out, fmt.Errorf("%w: sender=%q message=%q", errs.ErrTenantInconsistent, s, m))
	}
	if r != "" && r != m {
		out = append(out, fmt.Errorf("%w: recipient=%q message=%q", errs.ErrTenantInconsistent, r, m))
	}
	return out
}
