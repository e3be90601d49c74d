// Package opaengine wraps Open Policy Agent's Rego evaluator behind a
// compile-once, evaluate-many interface, grounded on
// other_examples' dkypuros-kuberenetes-agentic-policy-engine
// pkg/policy/opa.go (OPAEvaluator/OPAPolicy using rego.PreparedEvalQuery).
package opaengine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Input is the structured payload evaluated against a message-validation
// Rego policy.
type Input struct {
	MessageType        string                 `json:"message_type"`
	SenderID           string                 `json:"sender_id"`
	RecipientID        string                 `json:"recipient_id"`
	TenantID           string                 `json:"tenant_id"`
	ConstitutionalHash string                 `json:"constitutional_hash"`
	Payload            map[string]interface{} `json:"payload"`
}

// Output is the decision object a policy module is expected to return.
type Output struct {
	Allow  bool   `json:"allow"`
	Deny   bool   `json:"deny"`
	Reason string `json:"reason"`
}

// Engine evaluates a message against a compiled policy query.
type Engine interface {
	Evaluate(ctx context.Context, input Input) (Output, error)
}

// RegoEngine is the production Engine, backed by a prepared Rego query
// compiled once at construction time.
type RegoEngine struct {
	query rego.PreparedEvalQuery
}

// NewRegoEngine compiles the given Rego module and query and returns an
// Engine ready for repeated, low-latency evaluation.
func NewRegoEngine(ctx context.Context, regoModule, queryExpr string) (*RegoEngine, error) {
	query, err := rego.New(
		rego.Query(queryExpr),
		rego.Module("policy.rego", regoModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &RegoEngine{query: query}, nil
}

func (e *RegoEngine) Evaluate(ctx context.Context, input Input) (Output, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Output{}, fmt.Errorf("opa evaluation error: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Output{Deny: true, Reason: "opa returned no results"}, nil
	}

	value := results[0].Expressions[0].Value
	switch v := value.(type) {
	case bool:
		return Output{Allow: v, Deny: !v, Reason: "boolean policy result"}, nil
	case map[string]interface{}:
		out := Output{}
		if allow, ok := v["allow"].(bool); ok {
			out.Allow = allow
		}
		if deny, ok := v["deny"].(bool); ok {
			out.Deny = deny
		}
		if reason, ok := v["reason"].(string); ok {
			out.Reason = reason
		}
		return out, nil
	default:
		return Output{Deny: true, Reason: "unexpected opa result type"}, nil
	}
}
