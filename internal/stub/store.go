// Package stub is an in-memory backend implementing the import and
// assignment wire contract. It exists for local development and for
// integration tests; all job processing is simulated. For the real
// backend, point the client at the operations API.
package stub

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbops-go/internal/kb"
)

// Store holds all stub state. Job processing is simulated: every fetch
// advances a queued or processing job by progressStep percent, so a client
// polling at any cadence sees queued → processing → completed without a
// background worker.
type Store struct {
	mu           sync.Mutex
	jobs         map[string]*kb.ImportJob
	jobsByKey    map[string]string // idempotency key → job id
	commitKeys   map[string]string // job id → idempotency key that committed it
	intentBusy   map[string]bool   // job id → a commit/cancel intent is in flight
	assignments  map[string]kb.Assignment
	progressStep int
}

// NewStore creates an empty store advancing simulated jobs by step percent
// per fetch (default 25).
func NewStore(step int) *Store {
	if step <= 0 {
		step = 25
	}
	return &Store{
		jobs:         make(map[string]*kb.ImportJob),
		jobsByKey:    make(map[string]string),
		commitKeys:   make(map[string]string),
		intentBusy:   make(map[string]bool),
		assignments:  make(map[string]kb.Assignment),
		progressStep: step,
	}
}

// CreateJob registers a job, deduplicating on the idempotency key: a
// duplicate key returns the existing job id.
func (s *Store) CreateJob(source kb.Source, targetKBID, idemKey string) (string, error) {
	if source == nil {
		return "", fmt.Errorf("source is required")
	}
	if err := source.Validate(); err != nil {
		return "", err
	}
	if idemKey == "" {
		return "", fmt.Errorf("idempotencyKey is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobsByKey[idemKey]; ok {
		return id, nil
	}

	now := time.Now().UTC()
	job := &kb.ImportJob{
		ID:                uuid.NewString()[:8],
		Kind:              source.Kind(),
		Source:            source,
		Status:            kb.StatusQueued,
		CostEstimateCents: estimateCost(source),
		IdempotencyKey:    idemKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.jobs[job.ID] = job
	s.jobsByKey[idemKey] = job.ID
	return job.ID, nil
}

// estimateCost derives the informational cost estimate from source size.
func estimateCost(source kb.Source) int {
	var size int64
	switch src := source.(type) {
	case kb.FileSource:
		size = src.Size
	case kb.CSVSource:
		size = src.Size
	case kb.URLSource:
		return 50
	}
	cents := int(size / 1024)
	if cents < 5 {
		cents = 5
	}
	return cents
}

// FetchJob returns the job, advancing the processing simulation one step.
// Terminal jobs are returned unchanged.
func (s *Store) FetchJob(id string) (kb.ImportJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return kb.ImportJob{}, false
	}
	s.advanceLocked(job)
	return *job, true
}

// PeekJob returns the job without advancing the simulation.
func (s *Store) PeekJob(id string) (kb.ImportJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return kb.ImportJob{}, false
	}
	return *job, true
}

func (s *Store) advanceLocked(job *kb.ImportJob) {
	switch job.Status {
	case kb.StatusQueued:
		job.Status = kb.StatusProcessing
		job.UpdatedAt = time.Now().UTC()
	case kb.StatusProcessing:
		job.ProgressPct += s.progressStep
		if job.ProgressPct >= 100 {
			job.ProgressPct = 100
			job.Status = kb.StatusCompleted
		}
		job.UpdatedAt = time.Now().UTC()
	}
}

// ListJobs returns all jobs, most recent first.
func (s *Store) ListJobs() []kb.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]kb.ImportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// CommitJob applies a commit intent. Allowed only from completed; a repeat
// with the key that already committed the job is deduplicated. Everything
// else conflicts.
func (s *Store) CommitJob(id, idemKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errNotFound
	}
	if s.intentBusy[id] {
		return errConflict("another commit or cancel is in flight")
	}
	switch job.Status {
	case kb.StatusCommitted:
		if idemKey != "" && s.commitKeys[id] == idemKey {
			return nil
		}
		return errConflict("job is already committed")
	case kb.StatusCompleted:
		job.Status = kb.StatusCommitted
		job.UpdatedAt = time.Now().UTC()
		s.commitKeys[id] = idemKey
		return nil
	}
	return errConflict(fmt.Sprintf("job is %s, commit requires completed", job.Status))
}

// CancelJob applies a best-effort cancel intent and returns the resulting
// status. Cancelling a job that already finished succeeds without changing
// it; the caller sees which status won the race.
func (s *Store) CancelJob(id string) (kb.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return "", errNotFound
	}
	switch job.Status {
	case kb.StatusQueued, kb.StatusProcessing, kb.StatusCompleted:
		job.Status = kb.StatusCanceled
		job.UpdatedAt = time.Now().UTC()
	}
	return job.Status, nil
}

// SetStatus forces a job's status (tests drive races and failures with it).
func (s *Store) SetStatus(id string, status kb.JobStatus, errorMessage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	if status == kb.StatusCompleted || status == kb.StatusCommitted {
		job.ProgressPct = 100
	}
	job.UpdatedAt = time.Now().UTC()
	return true
}

// SetIntentBusy marks a job as having a commit/cancel intent in flight, so
// the next commit conflicts (tests exercise the 409 path with it).
func (s *Store) SetIntentBusy(id string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intentBusy[id] = busy
}

// UpsertAssignment creates or replaces the assignment for (scope, scopeId).
func (s *Store) UpsertAssignment(scope kb.Scope, scopeID, kbID string) (kb.Assignment, error) {
	a := kb.Assignment{Scope: scope, ScopeID: scopeID, KBID: kbID}
	if err := a.Validate(); err != nil {
		return kb.Assignment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.assignments {
		if existing.Scope == scope && existing.ScopeID == scopeID {
			existing.KBID = kbID
			s.assignments[id] = existing
			return existing, nil
		}
	}

	a.ID = uuid.NewString()[:8]
	a.CreatedAt = time.Now().UTC()
	s.assignments[a.ID] = a
	return a, nil
}

// DeleteAssignment removes an assignment by id.
func (s *Store) DeleteAssignment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return false
	}
	delete(s.assignments, id)
	return true
}

// ListAssignments returns all assignments ordered by creation time.
func (s *Store) ListAssignments() []kb.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]kb.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
