package strategies

import (
	"context"

	"github.com/acgs2/agentbus/internal/constitutional"
	"github.com/acgs2/agentbus/internal/models"
)

// goNativeBackend is the Go-native equivalent of
// processing_strategies.py's RustProcessingStrategy: an in-process, no-IO
// validation path with no FFI boundary to cross. It performs the same
// checks RustValidationStrategy's constitutional_validate fallback does —
// message_id presence, non-nil content, and a constant-time hash compare —
// as the fast path NativeStrategy's circuit breaker guards.
type goNativeBackend struct{}

// NewGoNativeBackend returns the default NativeBackend used when
// cfg.UseNativeBackend is set and no backend override is supplied.
func NewGoNativeBackend() NativeBackend { return goNativeBackend{} }

func (goNativeBackend) Process(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	if msg.Content == nil {
		return models.NewDeniedResult(msg.ConstitutionalHash, "message content cannot be nil"), nil
	}
	if msg.MessageID == "" {
		return models.NewDeniedResult(msg.ConstitutionalHash, "message id is required"), nil
	}
	ok, err := constitutional.Validate(msg.ConstitutionalHash, constitutional.DefaultHash)
	if !ok {
		reason := "constitutional hash validation failed in native backend"
		if err != nil {
			reason = err.Error()
		}
		return models.NewDeniedResult(msg.ConstitutionalHash, reason), nil
	}
	return models.NewValidResult(msg.ConstitutionalHash), nil
}
