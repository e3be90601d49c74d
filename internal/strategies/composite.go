package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/models"
)

// CompositeStrategy tries each strategy in order, falling back to the next
// only on a system error — never on a DENY decision — grounded on
// processing_strategies.py's CompositeProcessingStrategy.
type CompositeStrategy struct {
	chain []ValidationStrategy
}

func NewCompositeStrategy(chain ...ValidationStrategy) *CompositeStrategy {
	return &CompositeStrategy{chain: chain}
}

func (s *CompositeStrategy) Name() string {
	names := make([]string, len(s.chain))
	for i, strat := range s.chain {
		names[i] = strat.Name()
	}
	return "composite(" + strings.Join(names, "+") + ")"
}

func (s *CompositeStrategy) IsAvailable(ctx context.Context) bool {
	for _, strat := range s.chain {
		if strat.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

func (s *CompositeStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	var lastErr error
	for _, strat := range s.chain {
		if !strat.IsAvailable(ctx) {
			continue
		}
		result, err := strat.Validate(ctx, msg)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	return models.ValidationResult{}, fmt.Errorf("%w: all processing strategies failed: %w", errs.ErrSystemFault, lastErr)
}
