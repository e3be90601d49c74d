package models

import (
	"fmt"
	"strings"

	"github.com/acgs2/agentbus/internal/errs"
)

// Decision is the coarse outcome of a validation pass.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionDeny   Decision = "DENY"
	DecisionReview Decision = "REVIEW"
)

// ValidationResult is the uniform outcome type returned across every
// validation/processing strategy boundary; no strategy ever panics or
// returns a bare error across this boundary (spec.md §4.2 contract).
type ValidationResult struct {
	IsValid             bool
	Errors              []string
	Warnings            []string
	Metadata            map[string]any
	Decision            Decision
	ConstitutionalHash  string
}

// NewValidResult builds a passing result with ALLOW decision.
func NewValidResult(hash string) ValidationResult {
	return ValidationResult{
		IsValid:            true,
		Metadata:           map[string]any{},
		Decision:           DecisionAllow,
		ConstitutionalHash: hash,
	}
}

// NewDeniedResult builds a failing result with DENY decision and one error.
func NewDeniedResult(hash, reason string) ValidationResult {
	return ValidationResult{
		IsValid:            false,
		Errors:             []string{reason},
		Metadata:           map[string]any{},
		Decision:           DecisionDeny,
		ConstitutionalHash: hash,
	}
}

// AddError appends an error and flips IsValid to false.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
	if r.Decision == "" || r.Decision == DecisionAllow {
		r.Decision = DecisionDeny
	}
}

// AddWarning appends a warning without affecting validity.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds another result's errors/warnings/metadata into r. IsValid
// becomes the logical AND of both results.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	for k, v := range other.Metadata {
		r.Metadata[k] = v
	}
	if !other.IsValid {
		r.IsValid = false
		if r.Decision == DecisionAllow || r.Decision == "" {
			r.Decision = other.Decision
		}
	}
}

// Err reports nil for a valid result, or a wrapped errs.ErrValidationDenied
// joining every accumulated error message for callers (logging, audit)
// that want a typed cause rather than the raw Errors slice.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	if len(r.Errors) == 0 {
		return errs.ErrValidationDenied
	}
	return fmt.Errorf("%w: %s", errs.ErrValidationDenied, strings.Join(r.Errors, "; "))
}

func (r *ValidationResult) ensureMetadata() {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
}

// SetMetadata assigns a single metadata key, initializing the map lazily.
func (r *ValidationResult) SetMetadata(key string, value any) {
	r.ensureMetadata()
	r.Metadata[key] = value
}
