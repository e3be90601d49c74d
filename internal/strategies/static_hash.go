package strategies

import (
	"context"

	"github.com/acgs2/agentbus/internal/constitutional"
	"github.com/acgs2/agentbus/internal/models"
)

// StaticHashStrategy validates only the constitutional hash, the
// always-available baseline strategy (grounded on
// original_source/processing_strategies.py's PythonProcessingStrategy,
// which defaults to StaticHashValidationStrategy(strict=True)).
type StaticHashStrategy struct {
	Strict bool
}

func NewStaticHashStrategy(strict bool) *StaticHashStrategy {
	return &StaticHashStrategy{Strict: strict}
}

func (s *StaticHashStrategy) Name() string { return "python" }

func (s *StaticHashStrategy) IsAvailable(ctx context.Context) bool { return true }

func (s *StaticHashStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	hash := msg.ConstitutionalHash
	if hash == "" {
		hash = constitutional.DefaultHash
	}
	ok, err := constitutional.Validate(hash, constitutional.DefaultHash)
	if !ok {
		reason := "constitutional hash mismatch"
		if err != nil {
			reason = err.Error()
		}
		if !s.Strict {
			result := models.NewValidResult(hash)
			result.AddWarning(reason)
			return result, nil
		}
		return models.NewDeniedResult(hash, reason), nil
	}
	return models.NewValidResult(hash), nil
}
