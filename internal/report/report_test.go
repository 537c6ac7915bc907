package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

func init() {
	color.NoColor = true
}

func ts(h, m int) *time.Time {
	t := time.Date(2024, 1, 15, h, m, 0, 0, time.UTC)
	return &t
}

func sampleRun() *pipeline.AnalysisRun {
	return &pipeline.AnalysisRun{
		ID:     "0b7f3f5e-1111-4c5e-9a7a-000000000001",
		Source: "app.log",
		Phase:  pipeline.PhaseCompleted,
		Records: []pipeline.ErrorRecord{
			{
				ID: "rec-001", Kind: catalog.DivisionByZero, Message: "ZeroDivisionError: division by zero",
				Location: &pipeline.Location{File: "calculator.py", Line: 25}, Timestamp: ts(10, 30), Severity: catalog.SeverityHigh,
			},
			{
				ID: "rec-002", Kind: catalog.MissingKey, Message: "KeyError: 'email'",
				Location: &pipeline.Location{File: "users.py", Line: 88}, Timestamp: ts(9, 0), Severity: catalog.SeverityMedium,
			},
			{
				ID: "rec-003", Kind: catalog.DivisionByZero, Message: "ZeroDivisionError: float division by zero",
				Location: &pipeline.Location{File: "calculator.py", Line: 40}, Timestamp: ts(11, 0), Severity: catalog.SeverityHigh,
			},
		},
		Suggestions: map[string]pipeline.FixSuggestion{
			"rec-001": {RecordID: "rec-001", Kind: catalog.DivisionByZero, Title: "Guard the divisor against zero",
				OriginalExcerpt: "    return a / b", ProposedExcerpt: "    if b == 0:\n        raise ValueError(\"b\")\n    return a / b",
				Explanation: "Check b.", PreventionNote: "Validate divisors.", Confidence: 0.9},
			"rec-002": {RecordID: "rec-002", Kind: catalog.MissingKey, Title: "Handle the missing key email",
				OriginalExcerpt: "<statement>", ProposedExcerpt: "if \"email\" not in <container>:", Confidence: 0.65},
			"rec-003": {RecordID: "rec-003", Kind: catalog.DivisionByZero, Title: "Guard the divisor against zero",
				OriginalExcerpt: "x", ProposedExcerpt: "y", Confidence: 0.8},
		},
		Errors: []pipeline.RunError{
			{RecordID: "rec-002", Phase: pipeline.PhaseContextResolution, Message: "fetch users.py:88: source not found"},
		},
		StartedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun())

	if s.Total != 3 || s.Suggestions != 3 || s.SoftErrors != 1 {
		t.Errorf("Total/Suggestions/SoftErrors = %d/%d/%d, want 3/3/1", s.Total, s.Suggestions, s.SoftErrors)
	}
	if diff := cmp.Diff([]string{"calculator.py", "users.py"}, s.Files); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}
	if s.MeanConfidence != 0.78 {
		t.Errorf("MeanConfidence = %v, want 0.78", s.MeanConfidence)
	}
	if s.Oldest == nil || s.Newest == nil {
		t.Fatalf("window = %v .. %v, want both set", s.Oldest, s.Newest)
	}
	if !s.Oldest.Equal(*ts(9, 0)) {
		t.Errorf("Oldest = %v, want 09:00", s.Oldest)
	}
	if !s.Newest.Equal(*ts(11, 0)) {
		t.Errorf("Newest = %v, want 11:00", s.Newest)
	}

	wantKinds := []KindCount{{catalog.DivisionByZero, 2}, {catalog.MissingKey, 1}}
	if diff := cmp.Diff(wantKinds, s.ByKind); diff != "" {
		t.Errorf("ByKind (-want +got):\n%s", diff)
	}
	wantSev := []SeverityCount{{catalog.SeverityHigh, 2}, {catalog.SeverityMedium, 1}}
	if diff := cmp.Diff(wantSev, s.BySeverity); diff != "" {
		t.Errorf("BySeverity (-want +got):\n%s", diff)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(&pipeline.AnalysisRun{ID: "x", Phase: pipeline.PhaseCompleted})
	if s.Total != 0 || s.MeanConfidence != 0 {
		t.Errorf("Total = %d, MeanConfidence = %v, want zero", s.Total, s.MeanConfidence)
	}
	if s.Oldest != nil {
		t.Errorf("Oldest = %v, want nil", s.Oldest)
	}
	if len(s.ByKind) != 0 {
		t.Errorf("ByKind = %v, want empty", s.ByKind)
	}
}

func TestSummarizeIgnoresYearlessTimestamps(t *testing.T) {
	run := sampleRun()
	syslog := time.Date(0, 1, 15, 8, 0, 0, 0, time.UTC)
	run.Records = append(run.Records, pipeline.ErrorRecord{
		ID: "rec-004", Kind: catalog.MissingKey, Message: "KeyError: 'id'", Timestamp: &syslog, Severity: catalog.SeverityMedium,
	})

	s := Summarize(run)
	if s.Total != 4 {
		t.Errorf("Total = %d, want 4", s.Total)
	}
	if s.Oldest == nil || !s.Oldest.Equal(*ts(9, 0)) {
		t.Errorf("Oldest = %v, want 09:00 on 2024-01-15", s.Oldest)
	}

	only := &pipeline.AnalysisRun{ID: "y", Records: []pipeline.ErrorRecord{{ID: "rec-001", Timestamp: &syslog}}}
	if s := Summarize(only); s.Oldest != nil || s.Newest != nil {
		t.Errorf("window = %v .. %v, want none", s.Oldest, s.Newest)
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderText(&buf, sampleRun()); err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Run 0b7f3f5e",
		"Status:      completed",
		"Confidence:  78% mean",
		"division-by-zero     2",
		"HIGH     rec-001 division-by-zero",
		"at calculator.py:25",
		"→ Guard the divisor against zero (90% confidence)",
		"- " + "    return a / b",
		"+     if b == 0:",
		"Warnings (1)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	// Findings appear in log order.
	if strings.Index(out, "rec-001") > strings.Index(out, "rec-002") {
		t.Error("rec-001 rendered after rec-002")
	}
	if strings.Index(out, "rec-002 missing-key") > strings.Index(out, "rec-003") {
		t.Error("rec-002 rendered after rec-003")
	}
}

func TestRenderTextFailedAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	run := &pipeline.AnalysisRun{ID: "abc", Phase: pipeline.PhaseFailed, Reason: "cancelled"}
	if err := RenderText(&buf, run); err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "failed (cancelled)") {
		t.Errorf("missing failure status in:\n%s", out)
	}
	if !strings.Contains(out, "No errors found.") {
		t.Errorf("missing empty notice in:\n%s", out)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderTextPropagatesWriteError(t *testing.T) {
	err := RenderText(failingWriter{}, sampleRun())
	if err == nil || err.Error() != "disk full" {
		t.Errorf("err = %v, want disk full", err)
	}
}

func TestRenderRunJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRunJSON(&buf, sampleRun()); err != nil {
		t.Fatalf("RenderRunJSON: %v", err)
	}

	var doc struct {
		Summary Summary               `json:"summary"`
		Run     *pipeline.AnalysisRun `json:"run"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Summary.Total != 3 {
		t.Errorf("summary.total = %d, want 3", doc.Summary.Total)
	}
	if doc.Run.Records[0].ID != "rec-001" || doc.Run.Records[0].Severity != catalog.SeverityHigh {
		t.Errorf("first record = %+v", doc.Run.Records[0])
	}
	if !strings.Contains(buf.String(), `"severity": "high"`) {
		t.Errorf("severity not rendered as text:\n%s", buf.String())
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, sampleRun()); err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Error analysis 0b7f3f5e",
		"Source: `app.log`",
		"| division-by-zero | 2 |",
		"## rec-001: division-by-zero (high)",
		"`calculator.py:25`: ZeroDivisionError: division by zero",
		"**Guard the divisor against zero** (90% confidence)",
		"```\n    if b == 0:",
		"_Prevention:_ Validate divisors.",
		"## Warnings",
		"- context_resolution rec-002: fetch users.py:88: source not found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q\n%s", want, out)
		}
	}
}

func TestFence(t *testing.T) {
	if got := fence("plain"); got != "```" {
		t.Errorf("fence(plain) = %q", got)
	}
	if got := fence("has ``` inside"); got != "````" {
		t.Errorf("fence(nested) = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"text": FormatText, "json": FormatJSON, "markdown": FormatMarkdown, "md": FormatMarkdown} {
		got, err := ParseFormat(in)
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded, want error")
	}
}

func TestDeliverContinuesPastFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var buf bytes.Buffer
	var called []string

	err := Deliver(context.Background(), zap.New(core), sampleRun(),
		Named{"broken", ConsumerFunc(func(ctx context.Context, run *pipeline.AnalysisRun) error {
			called = append(called, "broken")
			return errors.New("db down")
		})},
		Named{"stdout", WriterConsumer{W: &buf, Format: FormatJSON}},
		Named{"after", ConsumerFunc(func(ctx context.Context, run *pipeline.AnalysisRun) error {
			called = append(called, "after")
			return nil
		})},
	)
	if err == nil || !strings.Contains(err.Error(), "broken: db down") {
		t.Fatalf("err = %v, want it to name the broken consumer", err)
	}
	if diff := cmp.Diff([]string{"broken", "after"}, called); diff != "" {
		t.Errorf("consumers called (-want +got):\n%s", diff)
	}
	if buf.Len() == 0 {
		t.Error("stdout consumer wrote nothing")
	}
	if n := logs.FilterMessage("report consumer failed").Len(); n != 1 {
		t.Errorf("logged %d consumer failures, want 1", n)
	}
}
