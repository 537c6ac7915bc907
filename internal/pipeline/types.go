package pipeline

import (
	"fmt"
	"time"

	"github.com/lucasnoah/fixfactory/internal/catalog"
)

// Phase is the stage an analysis run is in.
type Phase string

const (
	PhaseReceived          Phase = "received"
	PhaseParsing           Phase = "parsing"
	PhaseContextResolution Phase = "context_resolution"
	PhaseSynthesizing      Phase = "synthesizing"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// ReasonCancelled is the failure reason recorded when a run is cancelled.
const ReasonCancelled = "cancelled"

// Location is a file/line pair extracted from a log block.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ErrorRecord is one detected error occurrence. Immutable once parsed.
type ErrorRecord struct {
	ID        string           `json:"id"`
	Kind      catalog.Kind     `json:"kind"`
	Message   string           `json:"message"`
	Location  *Location        `json:"location,omitempty"`
	Trace     []string         `json:"trace"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Severity  catalog.Severity `json:"severity"`
	Signature string           `json:"signature,omitempty"`
}

// Excerpt is a bounded window of source text around a location.
type Excerpt struct {
	File         string   `json:"file"`
	StartLine    int      `json:"start_line"`
	Lines        []string `json:"lines"`
	FailingIndex int      `json:"failing_index"`
}

// FailingLine returns the source line the location points at, if it is in the window.
func (e *Excerpt) FailingLine() (string, bool) {
	if e == nil || e.FailingIndex < 0 || e.FailingIndex >= len(e.Lines) {
		return "", false
	}
	return e.Lines[e.FailingIndex], true
}

// Evidence records the signals a confidence score was built from.
type Evidence struct {
	Definitive         bool `json:"definitive"`
	HasLocation        bool `json:"has_location"`
	HasContext         bool `json:"has_context"`
	MissingIdentifiers bool `json:"missing_identifiers"`
}

// FixSuggestion is the synthesized fix for one record. Never mutated after creation.
type FixSuggestion struct {
	RecordID        string            `json:"record_id"`
	Kind            catalog.Kind      `json:"kind"`
	Title           string            `json:"title"`
	OriginalExcerpt string            `json:"original_excerpt"`
	ProposedExcerpt string            `json:"proposed_excerpt"`
	Explanation     string            `json:"explanation"`
	PreventionNote  string            `json:"prevention_note"`
	Confidence      float64           `json:"confidence"`
	Evidence        Evidence          `json:"evidence"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`
}

// RunError is a recoverable failure encountered during a run.
type RunError struct {
	RecordID string `json:"record_id,omitempty"`
	Phase    Phase  `json:"phase"`
	Message  string `json:"message"`
}

// AnalysisRun is the state of one pipeline execution.
type AnalysisRun struct {
	ID          string                   `json:"id"`
	Source      string                   `json:"source,omitempty"`
	Phase       Phase                    `json:"phase"`
	Reason      string                   `json:"reason,omitempty"`
	Records     []ErrorRecord            `json:"records"`
	Suggestions map[string]FixSuggestion `json:"suggestions"`
	Errors      []RunError               `json:"errors"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at,omitzero"`
}

// Failed reports whether the run ended in the failed phase.
func (r *AnalysisRun) Failed() bool {
	return r.Phase == PhaseFailed
}

// Pair joins a record with its suggestion, if one was produced.
type Pair struct {
	Record     ErrorRecord
	Suggestion *FixSuggestion
}

// Ordered returns records paired with suggestions in log order.
func (r *AnalysisRun) Ordered() []Pair {
	out := make([]Pair, 0, len(r.Records))
	for _, rec := range r.Records {
		p := Pair{Record: rec}
		if s, ok := r.Suggestions[rec.ID]; ok {
			p.Suggestion = &s
		}
		out = append(out, p)
	}
	return out
}

// ShortID returns the first eight characters of the run ID.
func (r *AnalysisRun) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
