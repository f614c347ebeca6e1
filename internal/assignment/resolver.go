// Package assignment implements knowledge-base scope assignments: the store
// client, the pure precedence resolver, and the caller-side resolution
// cache.
package assignment

import (
	"errors"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// ErrNoAssignment means no assignment matched the context, including the
// workspace default. That default is supposed to always exist, so this is a
// configuration defect upstream, never a retry condition.
var ErrNoAssignment = errors.New("no knowledge-base assignment matches the context")

// Context identifies where a call is happening. Empty fields mean the
// dimension does not apply (e.g. a call outside any campaign).
type Context struct {
	CampaignID string
	NumberID   string
	AgentID    string
}

// Resolution is the outcome of precedence resolution: the assignment that
// applies plus every matching assignment it overrides. Shadowed is for
// display and audit only; selection is decided entirely by precedence.
type Resolution struct {
	EffectiveKBID string
	Effective     kb.Assignment
	Shadowed      []kb.Assignment
}

// precedence lists scopes highest first. A campaign assignment beats a
// number assignment beats an agent assignment beats the workspace default.
var precedence = []kb.Scope{
	kb.ScopeCampaign,
	kb.ScopeNumber,
	kb.ScopeAgent,
	kb.ScopeWorkspaceDefault,
}

// Resolve picks the effective knowledge base for ctx. Pure function: no
// I/O, no mutation, identical inputs give identical outputs.
//
// Matches are gathered level by level in precedence order, preserving input
// order within a level. The first match is effective; every other match,
// lower levels and same-level duplicates alike, is shadowed. Duplicates per
// (scope, scopeId) violate the store invariant but can arrive from a stale
// cache: the first in input order wins and the duplicate stays visible in
// Shadowed.
func Resolve(assignments []kb.Assignment, ctx Context) (Resolution, error) {
	var matches []kb.Assignment
	for _, scope := range precedence {
		for _, a := range assignments {
			if a.Scope != scope {
				continue
			}
			if matchesContext(a, ctx) {
				matches = append(matches, a)
			}
		}
	}

	if len(matches) == 0 {
		return Resolution{}, ErrNoAssignment
	}

	return Resolution{
		EffectiveKBID: matches[0].KBID,
		Effective:     matches[0],
		Shadowed:      matches[1:],
	}, nil
}

func matchesContext(a kb.Assignment, ctx Context) bool {
	switch a.Scope {
	case kb.ScopeWorkspaceDefault:
		return true
	case kb.ScopeCampaign:
		return ctx.CampaignID != "" && a.ScopeID == ctx.CampaignID
	case kb.ScopeNumber:
		return ctx.NumberID != "" && a.ScopeID == ctx.NumberID
	case kb.ScopeAgent:
		return ctx.AgentID != "" && a.ScopeID == ctx.AgentID
	}
	return false
}
