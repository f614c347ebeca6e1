package assignment

import (
	"sync"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// ResolutionCache memoizes Resolve results per context. The resolver itself
// is stateless; the invalidation contract lives here: any assignment write
// must invalidate every cached resolution the written scope+id could have
// influenced.
type ResolutionCache struct {
	mu      sync.RWMutex
	entries map[Context]Resolution
}

// NewResolutionCache creates an empty cache.
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{entries: make(map[Context]Resolution)}
}

// Get returns the cached resolution for ctx, if present.
func (c *ResolutionCache) Get(ctx Context) (Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[ctx]
	return r, ok
}

// Put stores a resolution for ctx.
func (c *ResolutionCache) Put(ctx Context, r Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ctx] = r
}

// Invalidate drops every cached resolution the given scope+id can affect.
// A workspace_default change affects every context and clears the cache.
func (c *ResolutionCache) Invalidate(scope kb.Scope, scopeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope == kb.ScopeWorkspaceDefault {
		clear(c.entries)
		return
	}

	for ctx := range c.entries {
		affected := false
		switch scope {
		case kb.ScopeCampaign:
			affected = ctx.CampaignID == scopeID
		case kb.ScopeNumber:
			affected = ctx.NumberID == scopeID
		case kb.ScopeAgent:
			affected = ctx.AgentID == scopeID
		}
		if affected {
			delete(c.entries, ctx)
		}
	}
}

// Len returns the number of cached resolutions.
func (c *ResolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
