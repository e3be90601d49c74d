package registry

import (
	"context"
	"testing"
)

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewInMemoryRegistry("cdd01ef066bc6cf2")
	ctx := context.Background()

	ok, err := r.Register(ctx, "agent-1", nil, nil)
	if err != nil || !ok {
		t.Fatalf("expected first registration to succeed: ok=%v err=%v", ok, err)
	}
	ok, err = r.Register(ctx, "agent-1", nil, nil)
	if err != nil || ok {
		t.Fatalf("expected duplicate registration to fail: ok=%v err=%v", ok, err)
	}
}

func TestUpdateMetadataMerges(t *testing.T) {
	r := NewInMemoryRegistry("cdd01ef066bc6cf2")
	ctx := context.Background()
	r.Register(ctx, "agent-1", nil, map[string]any{"a": 1})

	ok, err := r.UpdateMetadata(ctx, "agent-1", map[string]any{"b": 2})
	if err != nil || !ok {
		t.Fatalf("expected update to succeed: ok=%v err=%v", ok, err)
	}

	rec, _, _ := r.Get(ctx, "agent-1")
	if rec.Metadata["a"] != 1 || rec.Metadata["b"] != 2 {
		t.Errorf("expected merged metadata, got %+v", rec.Metadata)
	}
}

func TestUnregisterAndExists(t *testing.T) {
	r := NewInMemoryRegistry("cdd01ef066bc6cf2")
	ctx := context.Background()
	r.Register(ctx, "agent-1", nil, nil)

	ok, _ := r.Unregister(ctx, "agent-1")
	if !ok {
		t.Fatal("expected unregister to succeed")
	}
	exists, _ := r.Exists(ctx, "agent-1")
	if exists {
		t.Error("expected agent to no longer exist")
	}
}

func TestClearEmptiesRegistry(t *testing.T) {
	r := NewInMemoryRegistry("cdd01ef066bc6cf2")
	ctx := context.Background()
	r.Register(ctx, "agent-1", nil, nil)
	r.Register(ctx, "agent-2", nil, nil)

	r.Clear(ctx)
	if r.AgentCount() != 0 {
		t.Errorf("expected empty registry after clear, got %d agents", r.AgentCount())
	}
}
