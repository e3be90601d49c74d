// Package constitutional implements the fixed identity check every message
// crossing the bus must pass: a 16-hex-character hash compared in constant
// time against the process-wide canonical value.
package constitutional

import (
	"crypto/subtle"
	"fmt"
	"regexp"

	"github.com/acgs2/agentbus/internal/errs"
)

// DefaultHash is the canonical constitutional hash used when no override is
// configured.
const DefaultHash = "cdd01ef066bc6cf2"

var hexPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// Truncate returns the 8-character prefix used in error messages so the
// canonical value is never fully leaked (spec.md §7 redaction rule).
func Truncate(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8] + "..."
}

// Validate reports whether candidate is well-formed (16 lowercase hex
// characters) and matches canonical, compared in constant time.
func Validate(candidate, canonical string) (bool, error) {
	if !hexPattern.MatchString(candidate) {
		return false, fmt.Errorf("%w: malformed: %s", errs.ErrConstitutionalMismatch, Truncate(candidate))
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(canonical)) != 1 {
		return false, fmt.Errorf("%w: %s", errs.ErrConstitutionalMismatch, Truncate(candidate))
	}
	return true, nil
}
