package report

import (
	"encoding/json"
	"io"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// RenderJSON writes v as indented JSON.
func RenderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Document is the JSON report: the run plus its summary.
type Document struct {
	Summary Summary               `json:"summary"`
	Run     *pipeline.AnalysisRun `json:"run"`
}

// RenderRunJSON writes the JSON report for run.
func RenderRunJSON(w io.Writer, run *pipeline.AnalysisRun) error {
	return RenderJSON(w, Document{Summary: Summarize(run), Run: run})
}
