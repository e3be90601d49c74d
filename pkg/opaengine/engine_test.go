package opaengine

import (
	"context"
	"testing"
)

const testModule = `
package policy

default allow = false

allow {
	input.constitutional_hash == "cdd01ef066bc6cf2"
	input.message_type != "COMMAND"
}
`

func TestRegoEngineEvaluate(t *testing.T) {
	ctx := context.Background()
	engine, err := NewRegoEngine(ctx, testModule, "data.policy.allow")
	if err != nil {
		t.Fatalf("NewRegoEngine error: %v", err)
	}

	out, err := engine.Evaluate(ctx, Input{
		MessageType:        "QUERY",
		ConstitutionalHash: "cdd01ef066bc6cf2",
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !out.Allow {
		t.Errorf("expected allow=true, got %+v", out)
	}

	out, err = engine.Evaluate(ctx, Input{
		MessageType:        "COMMAND",
		ConstitutionalHash: "cdd01ef066bc6cf2",
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if out.Allow {
		t.Errorf("expected allow=false for COMMAND, got %+v", out)
	}
}
