// Package kbimport implements the knowledge-base import pipeline: a typed
// client for the server-owned job resource, a polling loop with bounded
// retry, and the orchestrator state machine driving an import from source
// selection through commit or cancel.
package kbimport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/metrics"
)

// Client performs the remote operations on import jobs. It owns no job
// state; the server does.
type Client struct {
	api *api.Client
}

// NewClient creates a job client on top of the HTTP facade.
func NewClient(apiClient *api.Client) *Client {
	return &Client{api: apiClient}
}

// createRequest is the wire body for job creation.
type createRequest struct {
	Kind           kb.SourceKind   `json:"kind"`
	Source         json.RawMessage `json:"source"`
	TargetKBID     string          `json:"targetKbId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// createResponse is the wire response for job creation.
type createResponse struct {
	JobID string `json:"jobId"`
}

// Create registers a new import job. The idempotency key makes retries of
// the same logical attempt safe: the server returns the existing job for a
// duplicate key.
func (c *Client) Create(ctx context.Context, source kb.Source, targetKBID, idempotencyKey string) (string, error) {
	if source == nil {
		return "", fmt.Errorf("create import job: nil source")
	}
	raw, err := kb.EncodeSource(source)
	if err != nil {
		return "", fmt.Errorf("create import job: %w", err)
	}

	req := createRequest{
		Kind:           source.Kind(),
		Source:         raw,
		TargetKBID:     targetKBID,
		IdempotencyKey: idempotencyKey,
	}
	var resp createResponse
	if err := c.api.PostIdempotent(ctx, metrics.OpJobCreate, "/kb/import", idempotencyKey, req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("create import job: server returned no jobId")
	}
	return resp.JobID, nil
}

// Get fetches the current server view of a job.
func (c *Client) Get(ctx context.Context, jobID string) (kb.ImportJob, error) {
	var job kb.ImportJob
	err := c.api.Get(ctx, metrics.OpJobFetch, "/kb/import/"+url.PathEscape(jobID), &job)
	return job, err
}

// List fetches all jobs, most recent first.
func (c *Client) List(ctx context.Context) ([]kb.ImportJob, error) {
	var jobs []kb.ImportJob
	err := c.api.Get(ctx, metrics.OpJobList, "/kb/import", &jobs)
	return jobs, err
}

// commitRequest is the wire body for the commit intent.
type commitRequest struct {
	Action string `json:"action"`
}

// Commit sends the commit intent for a completed job. The job's idempotency
// key is reused so a repeated commit is deduplicated server-side. A 409
// means another commit or cancel is in flight and surfaces as a retryable
// conflict.
func (c *Client) Commit(ctx context.Context, jobID, idempotencyKey string) error {
	path := "/kb/import/" + url.PathEscape(jobID) + "/commit"
	return c.api.PostIdempotent(ctx, metrics.OpJobCommit, path, idempotencyKey, commitRequest{Action: "commit"}, nil)
}

// CancelOutcome reports what a cancel intent achieved. Cancel is
// best-effort: the server may have finished the job before the intent
// arrived, which is informational, not an error.
type CancelOutcome struct {
	Status          kb.JobStatus `json:"status"`
	AlreadyFinished bool         `json:"alreadyFinished"`
}

// Cancel sends the cancel intent for a job.
func (c *Client) Cancel(ctx context.Context, jobID string) (CancelOutcome, error) {
	path := "/kb/import/" + url.PathEscape(jobID) + "/cancel"
	var out CancelOutcome
	if err := c.api.Post(ctx, metrics.OpJobCancel, path, nil, &out); err != nil {
		return CancelOutcome{}, err
	}
	if out.Status != kb.StatusCanceled && out.Status.Terminal() {
		out.AlreadyFinished = true
	}
	return out, nil
}
