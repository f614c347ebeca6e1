package kbimport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// PollPolicy bounds the poll loop. These are deployment policy, not
// protocol; see config.Config for the tunables.
type PollPolicy struct {
	// Interval between successful polls.
	Interval time.Duration
	// MaxRetries caps consecutive transient fetch failures before the loop
	// gives up.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per consecutive
	// failure up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultPollPolicy matches the deployed console defaults.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    2 * time.Second,
		MaxRetries:  5,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  8 * time.Second,
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	d := DefaultPollPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffCap < p.BackoffBase {
		p.BackoffCap = d.BackoffCap
	}
	return p
}

// delay returns the backoff for the given consecutive failure count
// (1-based).
func (p PollPolicy) delay(failures int) time.Duration {
	d := p.BackoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

// Poller re-fetches a job until it reaches a terminal status. One Poll call
// owns exactly one timer; cancelling ctx tears it down immediately, which is
// how a dismissed workflow view stops foreground polling.
type Poller struct {
	client *Client
	policy PollPolicy
	logger *slog.Logger
}

// NewPoller creates a poller with the given policy (zero fields take
// defaults). A nil logger uses the default.
func NewPoller(client *Client, policy PollPolicy, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client: client,
		policy: policy.withDefaults(),
		logger: logger,
	}
}

// Poll fetches the job until its status is terminal, invoking onUpdate for
// every accepted snapshot. Transient fetch failures are retried with
// exponential backoff up to the policy's retry budget; a non-retryable
// classification or an exhausted budget ends the loop with an error.
// Snapshots that would move the status backward are dropped.
func (p *Poller) Poll(ctx context.Context, jobID string, onUpdate func(kb.ImportJob)) (kb.ImportJob, error) {
	var (
		last     kb.ImportJob
		haveLast bool
		failures int
	)

	for {
		job, err := p.client.Get(ctx, jobID)
		switch {
		case err == nil:
			failures = 0
			if haveLast && !last.Status.CanAdvance(job.Status) {
				// Stale read: the server never moves a job backward, so an
				// out-of-order response is dropped without invoking onUpdate.
				p.logger.Warn("dropping out-of-order job snapshot",
					"job_id", jobID, "have", last.Status, "got", job.Status)
				if err := sleep(ctx, p.policy.Interval); err != nil {
					return last, err
				}
				continue
			}
			last = job
			haveLast = true
			if onUpdate != nil {
				onUpdate(job)
			}
			if job.Status.Terminal() {
				return job, nil
			}
			if err := sleep(ctx, p.policy.Interval); err != nil {
				return last, err
			}

		case !api.IsRetryable(err):
			return last, fmt.Errorf("poll job %s: %w", jobID, err)

		default:
			failures++
			if failures > p.policy.MaxRetries {
				return last, fmt.Errorf("poll job %s: retry budget exhausted after %d attempts: %w",
					jobID, failures, err)
			}
			delay := p.policy.delay(failures)
			p.logger.Warn("job poll failed, backing off",
				"job_id", jobID, "attempt", failures, "delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return last, err
			}
		}
	}
}

// sleep waits for d or until ctx is done, whichever comes first. The timer
// is always stopped; nothing leaks when the view goes away mid-wait.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
