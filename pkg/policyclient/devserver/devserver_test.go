package devserver

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/acgs2/agentbus/pkg/policyclient"
)

func TestDevServerServesRegisteredPolicy(t *testing.T) {
	srv := New()
	srv.Put(policyclient.Policy{ID: "governance-core", Content: map[string]interface{}{"allow": true}, Version: "v1"})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := policyclient.NewHTTPClient(ts.URL, "")
	policy, err := client.GetPolicy(context.Background(), "governance-core")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Version != "v1" {
		t.Fatalf("expected version v1, got %s", policy.Version)
	}
}

func TestDevServerReturns404ForUnknownPolicy(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := policyclient.NewHTTPClient(ts.URL, "")
	if _, err := client.GetPolicy(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unregistered policy id")
	}
}
