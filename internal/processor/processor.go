// Package processor implements the message-processing front door: a
// prompt-injection screen, a validated-result cache, and dispatch into a
// ValidationStrategy, grounded on
// original_source/message_processor.py's MessageProcessor.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/internal/strategies"
)

// promptInjectionPatterns is the exact pattern set from
// original_source/message_processor.py's PROMPT_INJECTION_PATTERNS,
// combined into a single case-insensitive alternation.
var promptInjectionPatterns = []string{
	`ignore (all )?previous instructions`,
	`system prompt (leak|override|manipulation)`,
	`do anything now`,
	`jailbreak`,
	`persona (adoption|override)`,
	`\(note to self: .*\)`,
	`\[INST\].*\[/INST\]`,
}

var injectionRE = regexp.MustCompile("(?i)" + joinAlternation(promptInjectionPatterns))

func joinAlternation(patterns []string) string {
	out := patterns[0]
	for _, p := range patterns[1:] {
		out += "|" + p
	}
	return out
}

const validationCacheSize = 1000

// Processor screens, caches, and dispatches messages to a validation
// strategy, grounded on MessageProcessor._do_process.
type Processor struct {
	strategy strategies.ValidationStrategy
	cache    *lru.Cache[string, models.ValidationResult]

	mu            sync.Mutex
	processedCount int
	failedCount    int
}

// New constructs a Processor around the given strategy chain.
func New(strategy strategies.ValidationStrategy) (*Processor, error) {
	cache, err := lru.New[string, models.ValidationResult](validationCacheSize)
	if err != nil {
		return nil, err
	}
	return &Processor{strategy: strategy, cache: cache}, nil
}

// Process screens msg for prompt injection, checks the validation cache,
// dispatches to the configured strategy, and records processed/failed
// counters on a successful/unsuccessful outcome respectively.
func (p *Processor) Process(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	start := time.Now()

	if res, ok := p.detectPromptInjection(msg); ok {
		p.mu.Lock()
		p.failedCount++
		p.mu.Unlock()
		return res, nil
	}

	key := cacheKey(msg)
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	res, err := p.strategy.Validate(ctx, msg)
	if err != nil {
		p.mu.Lock()
		p.failedCount++
		p.mu.Unlock()
		return models.ValidationResult{}, err
	}

	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["latency_ms"] = latencyMs

	p.mu.Lock()
	if res.IsValid {
		p.cache.Add(key, res)
		p.processedCount++
	} else {
		p.failedCount++
	}
	p.mu.Unlock()

	return res, nil
}

// detectPromptInjection mirrors _detect_prompt_injection: it never calls
// into the strategy chain once a match is found.
func (p *Processor) detectPromptInjection(msg *models.AgentMessage) (models.ValidationResult, bool) {
	text := contentText(msg)
	if !injectionRE.MatchString(text) {
		return models.ValidationResult{}, false
	}
	res := models.NewDeniedResult(msg.ConstitutionalHash, "Prompt injection detected")
	res.Metadata["rejection_reason"] = "prompt_injection"
	return res, true
}

func contentText(msg *models.AgentMessage) string {
	if msg.Content == nil {
		return ""
	}
	if text, ok := msg.Content["text"].(string); ok {
		return text
	}
	return fmt.Sprint(msg.Content)
}

// cacheKey mirrors f"{sha256(content)[:16]}:{constitutional_hash}".
func cacheKey(msg *models.AgentMessage) string {
	sum := sha256.Sum256([]byte(fmt.Sprint(msg.Content)))
	return hex.EncodeToString(sum[:])[:16] + ":" + msg.ConstitutionalHash
}

// Metrics reports processor-level counters, mirroring get_metrics.
type Metrics struct {
	ProcessedCount  int
	FailedCount     int
	SuccessRate     float64
	StrategyName    string
}

func (p *Processor) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.processedCount + p.failedCount
	rate := 0.0
	if total > 0 {
		rate = float64(p.processedCount) / float64(total)
	}
	name := "none"
	if p.strategy != nil {
		name = p.strategy.Name()
	}
	return Metrics{
		ProcessedCount: p.processedCount,
		FailedCount:    p.failedCount,
		SuccessRate:    rate,
		StrategyName:   name,
	}
}
