package assignment

import (
	"errors"
	"reflect"
	"testing"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// fullSet is one assignment per scope: workspace default, agent, number and
// campaign all configured.
func fullSet() []kb.Assignment {
	return []kb.Assignment{
		{ID: "a-ws", Scope: kb.ScopeWorkspaceDefault, KBID: "KB_A"},
		{ID: "a-agent", Scope: kb.ScopeAgent, ScopeID: "agent-1", KBID: "KB_B"},
		{ID: "a-number", Scope: kb.ScopeNumber, ScopeID: "+390612345678", KBID: "KB_C"},
		{ID: "a-camp", Scope: kb.ScopeCampaign, ScopeID: "camp-1", KBID: "KB_D"},
	}
}

func kbIDs(assignments []kb.Assignment) []string {
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.KBID)
	}
	return ids
}

func TestResolve_PrecedenceOrdering(t *testing.T) {
	tests := []struct {
		name         string
		ctx          Context
		wantKB       string
		wantShadowed []string
	}{
		{
			name:         "full context picks campaign",
			ctx:          Context{CampaignID: "camp-1", NumberID: "+390612345678", AgentID: "agent-1"},
			wantKB:       "KB_D",
			wantShadowed: []string{"KB_C", "KB_B", "KB_A"},
		},
		{
			name:         "no campaign context picks number",
			ctx:          Context{NumberID: "+390612345678", AgentID: "agent-1"},
			wantKB:       "KB_C",
			wantShadowed: []string{"KB_B", "KB_A"},
		},
		{
			name:         "agent only",
			ctx:          Context{AgentID: "agent-1"},
			wantKB:       "KB_B",
			wantShadowed: []string{"KB_A"},
		},
		{
			name:         "empty context falls back to workspace default",
			ctx:          Context{},
			wantKB:       "KB_A",
			wantShadowed: []string{},
		},
		{
			name:         "unknown ids fall through to workspace default",
			ctx:          Context{CampaignID: "other", NumberID: "+49", AgentID: "agent-9"},
			wantKB:       "KB_A",
			wantShadowed: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(fullSet(), tt.ctx)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if res.EffectiveKBID != tt.wantKB {
				t.Errorf("EffectiveKBID = %q, want %q", res.EffectiveKBID, tt.wantKB)
			}
			got := kbIDs(res.Shadowed)
			if len(got) == 0 && len(tt.wantShadowed) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.wantShadowed) {
				t.Errorf("Shadowed = %v, want %v", got, tt.wantShadowed)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	ctx := Context{CampaignID: "camp-1", NumberID: "+390612345678", AgentID: "agent-1"}

	first, err := Resolve(fullSet(), ctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := Resolve(fullSet(), ctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs resolved differently:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestResolve_NoAssignment(t *testing.T) {
	// No workspace default and nothing matching the context.
	assignments := []kb.Assignment{
		{ID: "a1", Scope: kb.ScopeAgent, ScopeID: "agent-2", KBID: "KB_X"},
	}

	_, err := Resolve(assignments, Context{AgentID: "agent-1"})
	if !errors.Is(err, ErrNoAssignment) {
		t.Fatalf("Resolve() error = %v, want ErrNoAssignment", err)
	}

	if _, err := Resolve(nil, Context{}); !errors.Is(err, ErrNoAssignment) {
		t.Fatalf("Resolve(nil) error = %v, want ErrNoAssignment", err)
	}
}

func TestResolve_DuplicatePrefersFirstAndReportsShadowed(t *testing.T) {
	// Two assignments for the same (scope, scopeId): invalid store state,
	// but the resolver must stay deterministic and keep both visible.
	assignments := []kb.Assignment{
		{ID: "dup-1", Scope: kb.ScopeAgent, ScopeID: "agent-1", KBID: "KB_FIRST"},
		{ID: "dup-2", Scope: kb.ScopeAgent, ScopeID: "agent-1", KBID: "KB_SECOND"},
		{ID: "ws", Scope: kb.ScopeWorkspaceDefault, KBID: "KB_A"},
	}

	res, err := Resolve(assignments, Context{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.EffectiveKBID != "KB_FIRST" {
		t.Errorf("EffectiveKBID = %q, want first duplicate KB_FIRST", res.EffectiveKBID)
	}
	want := []string{"KB_SECOND", "KB_A"}
	if got := kbIDs(res.Shadowed); !reflect.DeepEqual(got, want) {
		t.Errorf("Shadowed = %v, want %v", got, want)
	}
}

func TestResolve_ScopeIDMustMatchContext(t *testing.T) {
	assignments := []kb.Assignment{
		{ID: "camp", Scope: kb.ScopeCampaign, ScopeID: "camp-2", KBID: "KB_OTHER"},
		{ID: "ws", Scope: kb.ScopeWorkspaceDefault, KBID: "KB_A"},
	}

	// camp-2 is configured but the call is in camp-1: the campaign
	// assignment neither applies nor shows up as shadowed.
	res, err := Resolve(assignments, Context{CampaignID: "camp-1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.EffectiveKBID != "KB_A" {
		t.Errorf("EffectiveKBID = %q, want KB_A", res.EffectiveKBID)
	}
	if len(res.Shadowed) != 0 {
		t.Errorf("Shadowed = %v, want none", res.Shadowed)
	}
}
