// Package errs defines the bus's sentinel error taxonomy (spec.md §7).
// Collaborators wrap one of these with fmt.Errorf's %w so callers can test
// the failure category with errors.Is regardless of the wrapping message.
package errs

import "errors"

var (
	// ErrConstitutionalMismatch marks a message whose constitutional hash
	// does not match the bus's configured hash.
	ErrConstitutionalMismatch = errors.New("constitutional hash mismatch")

	// ErrInvalidTenant marks a tenant id that fails format validation.
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrTenantInconsistent marks a message whose sender, recipient, and
	// declared tenant do not all agree after normalization.
	ErrTenantInconsistent = errors.New("tenant inconsistency across message edge")

	// ErrValidationDenied marks a message a validation strategy refused.
	ErrValidationDenied = errors.New("validation denied")

	// ErrSystemFault marks an unexpected failure inside a validation
	// strategy or processor, distinct from an ordinary denial.
	ErrSystemFault = errors.New("system fault during processing")

	// ErrRoleSeparation marks a MACI enforcement refusal.
	ErrRoleSeparation = errors.New("role separation violation")

	// ErrHandlerFailed marks a downstream delivery handler (router,
	// transport, registry) failure.
	ErrHandlerFailed = errors.New("handler failed")

	// ErrDeliberationTimeout marks a deliberation task that reached its
	// deadline without a terminal decision.
	ErrDeliberationTimeout = errors.New("deliberation timed out")

	// ErrGuardDenied marks a deliberation task a guard (signature or
	// critic-review round) refused to approve.
	ErrGuardDenied = errors.New("guard denied")

	// ErrRecoveryExhausted marks a recovery task that used its full retry
	// budget without the guarded service recovering.
	ErrRecoveryExhausted = errors.New("recovery attempts exhausted")
)
