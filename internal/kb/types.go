// Package kb defines the data model shared by the import pipeline and the
// assignment resolver: import jobs, import sources, knowledge bases and
// scope assignments.
package kb

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// JobStatus is the server-side state of an import job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCanceled   JobStatus = "canceled"
	StatusCommitted  JobStatus = "committed"
)

// Terminal reports whether no further server-driven transition can occur.
// A completed job still accepts commit/cancel intents but never moves on
// its own.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusCommitted:
		return true
	}
	return false
}

// rank orders statuses along the job lifecycle. Failed and canceled share a
// rank with completed: they are alternative exits from processing.
func (s JobStatus) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed, StatusCanceled:
		return 2
	case StatusCommitted:
		return 3
	}
	return -1
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvance reports whether a transition from s to next moves forward (or
// stays put) along the lifecycle. Transitions out of a terminal state other
// than completed→committed never advance.
func (s JobStatus) CanAdvance(next JobStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() && !(s == StatusCompleted && next.Terminal()) {
		return false
	}
	return next.rank() >= s.rank()
}

// SourceKind discriminates the import source union.
type SourceKind string

const (
	SourceCSV  SourceKind = "csv"
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Source is the tagged union of import source descriptors. Concrete types
// are FileSource, URLSource and CSVSource.
type Source interface {
	Kind() SourceKind
	Validate() error
}

// FileSource describes an uploaded document.
type FileSource struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (FileSource) Kind() SourceKind { return SourceFile }

func (s FileSource) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("file source: missing name")
	}
	if s.Size <= 0 {
		return fmt.Errorf("file source %q: empty file", s.Name)
	}
	return nil
}

// URLSource describes a remote document to fetch server-side.
type URLSource struct {
	URL string `json:"url"`
}

func (URLSource) Kind() SourceKind { return SourceURL }

func (s URLSource) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url source: missing url")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("url source: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url source %q: must be http or https", s.URL)
	}
	return nil
}

// CSVSource describes an uploaded CSV of knowledge entries.
type CSVSource struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (CSVSource) Kind() SourceKind { return SourceCSV }

func (s CSVSource) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("csv source: missing name")
	}
	if s.Size <= 0 {
		return fmt.Errorf("csv source %q: empty file", s.Name)
	}
	return nil
}

// sourceEnvelope is the wire form of the source union.
type sourceEnvelope struct {
	Type SourceKind `json:"type"`
	Name string     `json:"name,omitempty"`
	Size int64      `json:"size,omitempty"`
	URL  string     `json:"url,omitempty"`
}

// EncodeSource marshals a source with its discriminator tag.
func EncodeSource(s Source) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode source: nil source")
	}
	env := sourceEnvelope{Type: s.Kind()}
	switch src := s.(type) {
	case FileSource:
		env.Name, env.Size = src.Name, src.Size
	case URLSource:
		env.URL = src.URL
	case CSVSource:
		env.Name, env.Size = src.Name, src.Size
	default:
		return nil, fmt.Errorf("encode source: unknown kind %q", s.Kind())
	}
	return json.Marshal(env)
}

// DecodeSource unmarshals a tagged source payload.
func DecodeSource(data []byte) (Source, error) {
	var env sourceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	switch env.Type {
	case SourceFile:
		return FileSource{Name: env.Name, Size: env.Size}, nil
	case SourceURL:
		return URLSource{URL: env.URL}, nil
	case SourceCSV:
		return CSVSource{Name: env.Name, Size: env.Size}, nil
	default:
		return nil, fmt.Errorf("decode source: unknown kind %q", env.Type)
	}
}

// ImportJob is the client's read view of a server-owned import job.
type ImportJob struct {
	ID                string     `json:"id"`
	Kind              SourceKind `json:"kind"`
	Source            Source     `json:"-"`
	Status            JobStatus  `json:"status"`
	ProgressPct       int        `json:"progressPct"`
	CostEstimateCents int        `json:"costEstimateCents"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	IdempotencyKey    string     `json:"idempotencyKey,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// importJobWire mirrors ImportJob with the source as raw JSON so the union
// can be decoded through its envelope.
type importJobWire struct {
	ID                string          `json:"id"`
	Kind              SourceKind      `json:"kind"`
	Source            json.RawMessage `json:"source,omitempty"`
	Status            JobStatus       `json:"status"`
	ProgressPct       int             `json:"progressPct"`
	CostEstimateCents int             `json:"costEstimateCents"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	IdempotencyKey    string          `json:"idempotencyKey,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// MarshalJSON encodes the job with its tagged source payload.
func (j ImportJob) MarshalJSON() ([]byte, error) {
	wire := importJobWire{
		ID:                j.ID,
		Kind:              j.Kind,
		Status:            j.Status,
		ProgressPct:       j.ProgressPct,
		CostEstimateCents: j.CostEstimateCents,
		ErrorMessage:      j.ErrorMessage,
		IdempotencyKey:    j.IdempotencyKey,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
	if j.Source != nil {
		raw, err := EncodeSource(j.Source)
		if err != nil {
			return nil, err
		}
		wire.Source = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the job, dispatching the source union by tag.
func (j *ImportJob) UnmarshalJSON(data []byte) error {
	var wire importJobWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*j = ImportJob{
		ID:                wire.ID,
		Kind:              wire.Kind,
		Status:            wire.Status,
		ProgressPct:       wire.ProgressPct,
		CostEstimateCents: wire.CostEstimateCents,
		ErrorMessage:      wire.ErrorMessage,
		IdempotencyKey:    wire.IdempotencyKey,
		CreatedAt:         wire.CreatedAt,
		UpdatedAt:         wire.UpdatedAt,
	}
	if len(wire.Source) > 0 {
		src, err := DecodeSource(wire.Source)
		if err != nil {
			return err
		}
		j.Source = src
	}
	return nil
}

// Scope is the dimension an assignment applies to.
type Scope string

const (
	ScopeWorkspaceDefault Scope = "workspace_default"
	ScopeCampaign         Scope = "campaign"
	ScopeNumber           Scope = "number"
	ScopeAgent            Scope = "agent"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeWorkspaceDefault, ScopeCampaign, ScopeNumber, ScopeAgent:
		return true
	}
	return false
}

// Assignment binds a knowledge base to one scope instance. ScopeID is empty
// for workspace_default and required everywhere else; at most one assignment
// exists per (scope, scopeId).
type Assignment struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"scope"`
	ScopeID   string    `json:"scopeId,omitempty"`
	KBID      string    `json:"kbId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the scope/scopeId pairing rules.
func (a Assignment) Validate() error {
	if !a.Scope.Valid() {
		return fmt.Errorf("assignment: unknown scope %q", a.Scope)
	}
	if a.KBID == "" {
		return fmt.Errorf("assignment: missing kbId")
	}
	if a.Scope == ScopeWorkspaceDefault {
		if a.ScopeID != "" {
			return fmt.Errorf("assignment: workspace_default must not carry a scopeId")
		}
		return nil
	}
	if a.ScopeID == "" {
		return fmt.Errorf("assignment: scope %q requires a scopeId", a.Scope)
	}
	return nil
}

// KnowledgeBase is the resolver's output type. Owned elsewhere; only the
// identity and health scores travel through this module.
type KnowledgeBase struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CompletenessPct int    `json:"completenessPct"`
	FreshnessScore  int    `json:"freshnessScore"`
}
