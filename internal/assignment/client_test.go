package assignment

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/metrics"
	"github.com/raphaelgruber/kbops-go/internal/stub"
)

func newClientEnv(t *testing.T) (*Client, *metrics.Collector) {
	t.Helper()
	srv := stub.New(stub.Config{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	collector := metrics.NewCollector()
	return NewClient(api.New(ts.URL, api.WithMetrics(collector)), NewResolutionCache()), collector
}

func TestClient_AssignAndResolveRemote(t *testing.T) {
	client, collector := newClientEnv(t)
	ctx := context.Background()

	if _, err := client.Assign(ctx, kb.ScopeWorkspaceDefault, "", "kb-default"); err != nil {
		t.Fatalf("Assign(workspace_default) error = %v", err)
	}
	if _, err := client.Assign(ctx, kb.ScopeAgent, "agent-7", "kb-agent"); err != nil {
		t.Fatalf("Assign(agent) error = %v", err)
	}

	rctx := Context{AgentID: "agent-7"}
	res, err := client.ResolveRemote(ctx, rctx)
	if err != nil {
		t.Fatalf("ResolveRemote() error = %v", err)
	}
	if res.EffectiveKBID != "kb-agent" {
		t.Errorf("effective = %q, want kb-agent", res.EffectiveKBID)
	}
	if len(res.Shadowed) != 1 || res.Shadowed[0].KBID != "kb-default" {
		t.Errorf("shadowed = %+v, want the workspace default", res.Shadowed)
	}

	// Second resolution for the same context is served from the cache.
	lists := collector.Count(metrics.OpAssignmentList)
	if _, err := client.ResolveRemote(ctx, rctx); err != nil {
		t.Fatalf("cached ResolveRemote() error = %v", err)
	}
	if got := collector.Count(metrics.OpAssignmentList); got != lists {
		t.Errorf("cache miss: list requests went %d → %d", lists, got)
	}
}

func TestClient_AssignInvalidatesCache(t *testing.T) {
	client, _ := newClientEnv(t)
	ctx := context.Background()

	if _, err := client.Assign(ctx, kb.ScopeAgent, "agent-7", "kb-old"); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	rctx := Context{AgentID: "agent-7"}
	if _, err := client.ResolveRemote(ctx, rctx); err != nil {
		t.Fatalf("ResolveRemote() error = %v", err)
	}

	// Replacing the binding must evict the cached resolution.
	if _, err := client.Assign(ctx, kb.ScopeAgent, "agent-7", "kb-new"); err != nil {
		t.Fatalf("re-Assign() error = %v", err)
	}
	res, err := client.ResolveRemote(ctx, rctx)
	if err != nil {
		t.Fatalf("ResolveRemote() after update error = %v", err)
	}
	if res.EffectiveKBID != "kb-new" {
		t.Errorf("effective = %q, want kb-new", res.EffectiveKBID)
	}
}

func TestClient_UnassignLeavesNoAssignment(t *testing.T) {
	client, _ := newClientEnv(t)
	ctx := context.Background()

	a, err := client.Assign(ctx, kb.ScopeCampaign, "camp-1", "kb-1")
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	rctx := Context{CampaignID: "camp-1"}
	if _, err := client.ResolveRemote(ctx, rctx); err != nil {
		t.Fatalf("ResolveRemote() error = %v", err)
	}

	if err := client.Unassign(ctx, a); err != nil {
		t.Fatalf("Unassign() error = %v", err)
	}
	if _, err := client.ResolveRemote(ctx, rctx); !errors.Is(err, ErrNoAssignment) {
		t.Errorf("ResolveRemote() after unassign error = %v, want ErrNoAssignment", err)
	}
}

func TestClient_AssignValidatesLocally(t *testing.T) {
	client, collector := newClientEnv(t)

	if _, err := client.Assign(context.Background(), kb.ScopeCampaign, "", "kb-1"); err == nil {
		t.Fatal("expected a validation error")
	}
	if got := collector.Count(metrics.OpAssignmentUpsert); got != 0 {
		t.Errorf("upsert requests = %d, want 0 (rejected locally)", got)
	}
}
