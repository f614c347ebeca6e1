package assignment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/metrics"
)

// Client performs the remote operations on assignments. When a cache is
// attached, every successful write invalidates the affected resolutions.
type Client struct {
	api   *api.Client
	cache *ResolutionCache
}

// NewClient creates an assignment client. cache may be nil.
func NewClient(apiClient *api.Client, cache *ResolutionCache) *Client {
	return &Client{api: apiClient, cache: cache}
}

// List fetches all assignments in the workspace.
func (c *Client) List(ctx context.Context) ([]kb.Assignment, error) {
	var assignments []kb.Assignment
	err := c.api.Get(ctx, metrics.OpAssignmentList, "/kb/assignments", &assignments)
	return assignments, err
}

// assignRequest is the wire body for the upsert.
type assignRequest struct {
	Scope   kb.Scope `json:"scope"`
	ScopeID string   `json:"scopeId,omitempty"`
	KBID    string   `json:"kbId"`
}

// Assign upserts the assignment for (scope, scopeId). At most one
// assignment exists per pair; assigning again replaces the knowledge base.
func (c *Client) Assign(ctx context.Context, scope kb.Scope, scopeID, kbID string) (kb.Assignment, error) {
	candidate := kb.Assignment{Scope: scope, ScopeID: scopeID, KBID: kbID}
	if err := candidate.Validate(); err != nil {
		return kb.Assignment{}, fmt.Errorf("assign: %w", err)
	}

	var out kb.Assignment
	req := assignRequest{Scope: scope, ScopeID: scopeID, KBID: kbID}
	if err := c.api.Post(ctx, metrics.OpAssignmentUpsert, "/kb/assign", req, &out); err != nil {
		return kb.Assignment{}, err
	}
	if c.cache != nil {
		c.cache.Invalidate(scope, scopeID)
	}
	return out, nil
}

// Unassign removes an assignment. The full assignment is taken, not just
// its id, so the cache can be invalidated for the right scope.
func (c *Client) Unassign(ctx context.Context, a kb.Assignment) error {
	if a.ID == "" {
		return fmt.Errorf("unassign: missing assignment id")
	}
	if err := c.api.Delete(ctx, metrics.OpAssignmentDelete, "/kb/assignments/"+url.PathEscape(a.ID)); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Invalidate(a.Scope, a.ScopeID)
	}
	return nil
}

// ResolveRemote lists the current assignments and resolves ctx against
// them, consulting the cache first.
func (c *Client) ResolveRemote(ctx context.Context, rctx Context) (Resolution, error) {
	if c.cache != nil {
		if r, ok := c.cache.Get(rctx); ok {
			return r, nil
		}
	}

	assignments, err := c.List(ctx)
	if err != nil {
		return Resolution{}, err
	}
	r, err := Resolve(assignments, rctx)
	if err != nil {
		return Resolution{}, err
	}
	if c.cache != nil {
		c.cache.Put(rctx, r)
	}
	return r, nil
}
