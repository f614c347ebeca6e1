package kbimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/notify"
)

// State is the orchestrator's position in the import workflow.
type State string

const (
	StateIdle           State = "idle"
	StateSourceSelected State = "source_selected"
	StateStarted        State = "started"
	StatePolling        State = "polling"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCanceled       State = "canceled"
	StateCommitting     State = "committing"
	StateCanceling      State = "canceling"
	StateCommitted      State = "committed"
)

// Terminal reports whether the workflow is finished in this state.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateCanceled || s == StateCommitted
}

// ValidationError is a locally-rejected operation: bad input or an
// operation invalid in the current state. No request was sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// IsValidationError reports whether err is a local validation rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Snapshot is a copy of the orchestrator's observable state, safe to hand
// to a rendering layer.
type Snapshot struct {
	State State
	JobID string
	Job   kb.ImportJob
	Err   error
}

// Orchestrator drives one import at a time through the workflow
// select source → start → poll → review → commit/cancel. It owns the single
// poll loop for its job and guarantees the loop is torn down on terminal
// status or Close.
type Orchestrator struct {
	client   *Client
	notifier notify.Notifier
	logger   *slog.Logger
	policy   PollPolicy
	onChange func(Snapshot)

	mu            sync.Mutex
	state         State
	source        kb.Source
	targetKBID    string
	idemKey       string
	jobID         string
	job           kb.ImportJob
	lastErr       error
	startInFlight bool
	pollCancel    context.CancelFunc
	pollDone      chan struct{}
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithNotifier routes outcome notifications to n.
func WithNotifier(n notify.Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPollPolicy overrides the default poll cadence and retry bounds.
func WithPollPolicy(p PollPolicy) OrchestratorOption {
	return func(o *Orchestrator) { o.policy = p.withDefaults() }
}

// WithOnChange registers a hook invoked after every observable transition,
// outside the orchestrator's lock.
func WithOnChange(fn func(Snapshot)) OrchestratorOption {
	return func(o *Orchestrator) { o.onChange = fn }
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(client *Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		notifier: notify.NewLog(nil),
		logger:   slog.Default(),
		policy:   DefaultPollPolicy(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a copy of the observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{State: o.state, JobID: o.jobID, Job: o.job, Err: o.lastErr}
}

// emit runs the change hook with a fresh snapshot. Must not hold the lock.
func (o *Orchestrator) emit() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.Snapshot())
}

// SelectSource records the import source. Pure local state change; no
// request is sent. Selecting a source begins a new logical attempt, so any
// previous idempotency key is discarded.
func (o *Orchestrator) SelectSource(source kb.Source, targetKBID string) error {
	o.mu.Lock()
	if o.activeLocked() {
		o.mu.Unlock()
		return &ValidationError{Reason: "an import is already in progress"}
	}
	if source == nil {
		o.mu.Unlock()
		return &ValidationError{Reason: "no source selected"}
	}
	if err := source.Validate(); err != nil {
		o.mu.Unlock()
		return &ValidationError{Reason: err.Error()}
	}

	o.source = source
	o.targetKBID = targetKBID
	o.idemKey = ""
	o.jobID = ""
	o.job = kb.ImportJob{}
	o.lastErr = nil
	o.state = StateSourceSelected
	o.mu.Unlock()

	o.emit()
	return nil
}

// activeLocked reports whether a job is currently being driven (start in
// flight, poll loop live, or an intent outstanding).
func (o *Orchestrator) activeLocked() bool {
	if o.startInFlight || o.pollCancel != nil {
		return true
	}
	switch o.state {
	case StateStarted, StatePolling, StateCommitting, StateCanceling:
		return true
	}
	return false
}

// Start creates the job and begins polling. Valid from source_selected, or
// from failed/canceled to retry the same attempt (the idempotency key is
// reused, so the server deduplicates). On a classified failure the
// orchestrator stays in source_selected: no job was created and retrying is
// safe.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.activeLocked() {
		o.mu.Unlock()
		return "", &ValidationError{Reason: "an import is already in progress"}
	}
	switch o.state {
	case StateSourceSelected, StateFailed, StateCanceled:
	default:
		o.mu.Unlock()
		return "", &ValidationError{Reason: fmt.Sprintf("cannot start from state %q", o.state)}
	}
	if o.source == nil {
		o.mu.Unlock()
		return "", &ValidationError{Reason: "no source selected"}
	}
	if o.idemKey == "" {
		o.idemKey = uuid.NewString()
	}
	source, target, key := o.source, o.targetKBID, o.idemKey
	o.startInFlight = true
	o.mu.Unlock()

	jobID, err := o.client.Create(ctx, source, target, key)

	o.mu.Lock()
	o.startInFlight = false
	if err != nil {
		o.state = StateSourceSelected
		o.lastErr = err
		o.mu.Unlock()
		o.logger.Warn("import start failed", "error", err, "kind", api.KindOf(err))
		o.notifier.Error("Import not started", err.Error(), api.IsRetryable(err))
		o.emit()
		return "", err
	}

	o.jobID = jobID
	o.lastErr = nil
	o.state = StateStarted
	o.startPollingLocked()
	o.mu.Unlock()

	o.logger.Info("import started", "job_id", jobID, "kind", source.Kind())
	o.emit()
	return jobID, nil
}

// startPollingLocked spawns the poll loop. Caller holds the lock and has
// verified no loop is live.
func (o *Orchestrator) startPollingLocked() {
	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.pollCancel = cancel
	o.pollDone = done
	o.state = StatePolling

	jobID := o.jobID
	go o.runPoll(pollCtx, jobID, done)
}

func (o *Orchestrator) runPoll(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	poller := NewPoller(o.client, o.policy, o.logger)
	job, err := poller.Poll(ctx, jobID, func(update kb.ImportJob) {
		o.mu.Lock()
		o.job = update
		o.mu.Unlock()
		o.emit()
	})

	o.mu.Lock()
	if o.pollDone == done {
		o.pollCancel = nil
		o.pollDone = nil
	}
	if errors.Is(err, context.Canceled) {
		// Torn down by Cancel or Close; whoever cancelled owns the state.
		o.mu.Unlock()
		return
	}
	if o.state != StatePolling {
		// The poll finished in the same instant a cancel intent moved the
		// state on; that intent owns the outcome now.
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.state = StateFailed
		o.lastErr = err
		o.mu.Unlock()
		o.notifier.Error("Import failed", err.Error(), false)
		o.emit()
		return
	}

	o.job = job
	switch job.Status {
	case kb.StatusCompleted:
		o.state = StateCompleted
		o.mu.Unlock()
		o.notifier.Info("Import ready", "processing finished, review and commit")
	case kb.StatusFailed:
		o.state = StateFailed
		o.lastErr = fmt.Errorf("import failed: %s", job.ErrorMessage)
		o.mu.Unlock()
		o.notifier.Error("Import failed", job.ErrorMessage, false)
	case kb.StatusCanceled:
		o.state = StateCanceled
		o.mu.Unlock()
		o.notifier.Info("Import canceled", "the job was canceled")
	case kb.StatusCommitted:
		o.state = StateCommitted
		o.mu.Unlock()
		o.notifier.Success("Import committed", "entries are live")
	default:
		o.state = StateFailed
		o.lastErr = fmt.Errorf("poll ended in non-terminal status %q", job.Status)
		o.mu.Unlock()
		o.notifier.Error("Import failed", o.lastErr.Error(), false)
	}
	o.emit()
}

// Commit publishes a completed import. Rejected locally, without a request,
// unless the job is in completed state. A conflict (another intent in
// flight) leaves the state unchanged and is retryable.
func (o *Orchestrator) Commit(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateCompleted || o.job.Status != kb.StatusCompleted {
		state := o.state
		o.mu.Unlock()
		return &ValidationError{Reason: fmt.Sprintf("commit requires a completed import, state is %q", state)}
	}
	o.state = StateCommitting
	jobID, key := o.jobID, o.idemKey
	o.mu.Unlock()
	o.emit()

	err := o.client.Commit(ctx, jobID, key)

	o.mu.Lock()
	if err != nil {
		o.state = StateCompleted // status unchanged; caller may retry
		o.lastErr = err
		o.mu.Unlock()
		o.logger.Warn("commit failed", "job_id", jobID, "error", err, "kind", api.KindOf(err))
		o.notifier.Error("Commit failed", err.Error(), api.IsRetryable(err))
		o.emit()
		return err
	}
	o.state = StateCommitted
	o.job.Status = kb.StatusCommitted
	o.lastErr = nil
	o.mu.Unlock()

	o.logger.Info("import committed", "job_id", jobID)
	o.notifier.Success("Import committed", "entries are live")
	o.emit()
	return nil
}

// Cancel abandons the import. Valid while the job is queued, processing or
// completed. Best-effort: if the server finished the job first, the outcome
// reports AlreadyFinished and the orchestrator adopts the server's status —
// this is informational, not an error.
func (o *Orchestrator) Cancel(ctx context.Context) (CancelOutcome, error) {
	o.mu.Lock()
	switch o.state {
	case StateStarted, StatePolling, StateCompleted:
	default:
		state := o.state
		o.mu.Unlock()
		return CancelOutcome{}, &ValidationError{Reason: fmt.Sprintf("cannot cancel from state %q", state)}
	}
	prev := o.state
	cancelPoll, pollDone := o.pollCancel, o.pollDone
	o.pollCancel = nil
	o.pollDone = nil
	o.state = StateCanceling
	jobID := o.jobID
	o.mu.Unlock()
	o.emit()

	if cancelPoll != nil {
		cancelPoll()
		<-pollDone
	}

	out, err := o.client.Cancel(ctx, jobID)

	o.mu.Lock()
	if err != nil {
		// The job is untouched server-side; fall back to where we were and
		// resume polling if we interrupted it.
		o.lastErr = err
		o.state = prev
		if prev == StateStarted || prev == StatePolling {
			o.startPollingLocked()
		}
		o.mu.Unlock()
		o.notifier.Error("Cancel failed", err.Error(), api.IsRetryable(err))
		o.emit()
		return CancelOutcome{}, err
	}

	if out.AlreadyFinished {
		o.job.Status = out.Status
		switch out.Status {
		case kb.StatusCommitted:
			o.state = StateCommitted
		case kb.StatusFailed:
			o.state = StateFailed
		default:
			o.state = StateCompleted
		}
		o.mu.Unlock()
		o.notifier.Info("Could not cancel", "the import already finished")
		o.emit()
		return out, nil
	}

	o.state = StateCanceled
	o.job.Status = kb.StatusCanceled
	o.mu.Unlock()
	o.logger.Info("import canceled", "job_id", jobID)
	o.notifier.Info("Import canceled", "the job was canceled")
	o.emit()
	return out, nil
}

// NewAttempt discards the current attempt's identity so the next Start
// creates a genuinely new job instead of deduplicating against the old key.
// Valid only once the workflow is finished.
func (o *Orchestrator) NewAttempt() error {
	o.mu.Lock()
	if o.activeLocked() || !(o.state.Terminal() || o.state == StateCompleted || o.state == StateIdle || o.state == StateSourceSelected) {
		state := o.state
		o.mu.Unlock()
		return &ValidationError{Reason: fmt.Sprintf("cannot reset from state %q", state)}
	}
	o.idemKey = ""
	o.jobID = ""
	o.job = kb.ImportJob{}
	o.lastErr = nil
	if o.source != nil {
		o.state = StateSourceSelected
	} else {
		o.state = StateIdle
	}
	o.mu.Unlock()
	o.emit()
	return nil
}

// Close tears down the poll loop, if any. The workflow view calling Close
// on dismissal is what guarantees no timer outlives the view. Idempotent.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	cancel, done := o.pollCancel, o.pollDone
	o.pollCancel = nil
	o.pollDone = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
