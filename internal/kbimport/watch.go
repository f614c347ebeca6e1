package kbimport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// Watch streams job snapshots over a websocket instead of polling. The
// server pushes a snapshot on every change and the stream ends when the job
// reaches a terminal status, preserving the same termination contract as
// Poll. Cancelling ctx closes the connection.
//
// Watch is an alternative for deployments that prefer push; the
// orchestrator itself polls.
func (c *Client) Watch(ctx context.Context, baseURL, jobID string, onUpdate func(kb.ImportJob)) (kb.ImportJob, error) {
	wsURL, err := watchURL(baseURL, jobID)
	if err != nil {
		return kb.ImportJob{}, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return kb.ImportJob{}, fmt.Errorf("watch job %s: %w", jobID, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Close the socket when ctx ends so ReadJSON unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	var last kb.ImportJob
	for {
		var job kb.ImportJob
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && last.Status.Terminal() {
				return last, nil
			}
			return last, fmt.Errorf("watch job %s: %w", jobID, err)
		}
		last = job
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.Terminal() {
			return job, nil
		}
	}
}

func watchURL(baseURL, jobID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("watch job: bad base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/kb/import/" + url.PathEscape(jobID) + "/watch"
	return u.String(), nil
}
