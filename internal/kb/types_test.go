package kb

import (
	"encoding/json"
	"testing"
)

func TestJobStatus_Lifecycle(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"queued to processing", StatusQueued, StatusProcessing, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to canceled", StatusProcessing, StatusCanceled, true},
		{"completed to committed", StatusCompleted, StatusCommitted, true},
		{"completed to canceled", StatusCompleted, StatusCanceled, true},
		{"same status holds", StatusProcessing, StatusProcessing, true},
		{"processing back to queued", StatusProcessing, StatusQueued, false},
		{"completed back to processing", StatusCompleted, StatusProcessing, false},
		{"failed to committed", StatusFailed, StatusCommitted, false},
		{"canceled to processing", StatusCanceled, StatusProcessing, false},
		{"committed is final", StatusCommitted, StatusCompleted, false},
		{"unknown status", JobStatus("bogus"), StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvance(tt.to); got != tt.want {
				t.Errorf("CanAdvance(%q → %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	terminal := []JobStatus{StatusCompleted, StatusFailed, StatusCanceled, StatusCommitted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr bool
	}{
		{"valid file", FileSource{Name: "handbook.pdf", Size: 2048}, false},
		{"file without name", FileSource{Size: 2048}, true},
		{"empty file", FileSource{Name: "empty.pdf"}, true},
		{"valid csv", CSVSource{Name: "faq.csv", Size: 100}, false},
		{"csv without name", CSVSource{Size: 100}, true},
		{"valid url", URLSource{URL: "https://example.com/docs"}, false},
		{"url missing", URLSource{}, true},
		{"url without scheme", URLSource{URL: "example.com/docs"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeSource_TagDispatch(t *testing.T) {
	raw := []byte(`{"type":"url","url":"https://example.com"}`)
	src, err := DecodeSource(raw)
	if err != nil {
		t.Fatalf("DecodeSource() error = %v", err)
	}
	u, ok := src.(URLSource)
	if !ok {
		t.Fatalf("decoded %T, want URLSource", src)
	}
	if u.URL != "https://example.com" {
		t.Errorf("URL = %q", u.URL)
	}

	if _, err := DecodeSource([]byte(`{"type":"ftp","url":"x"}`)); err == nil {
		t.Error("unknown source kind must fail to decode")
	}
}

func TestImportJob_SourceUnionJSON(t *testing.T) {
	job := ImportJob{
		ID:     "j1",
		Kind:   SourceFile,
		Source: FileSource{Name: "handbook.pdf", Size: 4096},
		Status: StatusProcessing,
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var back ImportJob
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	f, ok := back.Source.(FileSource)
	if !ok {
		t.Fatalf("Source decoded as %T, want FileSource", back.Source)
	}
	if f.Name != "handbook.pdf" || f.Size != 4096 {
		t.Errorf("Source = %+v", f)
	}
	if back.Status != StatusProcessing {
		t.Errorf("Status = %q", back.Status)
	}
}

func TestAssignment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		a       Assignment
		wantErr bool
	}{
		{"workspace default without scopeId", Assignment{Scope: ScopeWorkspaceDefault, KBID: "kb1"}, false},
		{"workspace default with scopeId", Assignment{Scope: ScopeWorkspaceDefault, ScopeID: "x", KBID: "kb1"}, true},
		{"campaign with scopeId", Assignment{Scope: ScopeCampaign, ScopeID: "camp-1", KBID: "kb1"}, false},
		{"campaign without scopeId", Assignment{Scope: ScopeCampaign, KBID: "kb1"}, true},
		{"missing kb", Assignment{Scope: ScopeAgent, ScopeID: "agent-1"}, true},
		{"unknown scope", Assignment{Scope: "team", ScopeID: "t1", KBID: "kb1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
