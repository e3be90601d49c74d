package processor

import "context"

// SemanticVerifier is the extension point a future Semantic Drift
// Prevention Controller (intent classification, claim verification,
// evolving-policy critique) would implement. original_source ships this as
// MessageProcessor's SDPC Phase 2/3 logic (intent_classifier, asc_verifier,
// graph_check, pacar_verifier, evolution_controller, ampo_engine); spec.md's
// Non-goals exclude ML-driven adaptive governance, so no implementation
// is wired here: Processor holds no SemanticVerifier and never calls one,
// so no semantic check runs on any message.
type SemanticVerifier interface {
	Verify(ctx context.Context, contentText string) (valid bool, confidence float64, err error)
}
