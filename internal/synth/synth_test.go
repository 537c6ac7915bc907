package synth

import (
	"context"
	"strings"
	"testing"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

func newTestSynth(t *testing.T) *Synthesizer {
	t.Helper()
	s, err := New(catalog.MustDefault(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func calculatorExcerpt() *pipeline.Excerpt {
	return &pipeline.Excerpt{
		File:      "calculator.py",
		StartLine: 23,
		Lines: []string{
			"def divide(a, b):",
			"    \"\"\"Divide a by b.\"\"\"",
			"    return a / b",
			"",
		},
		FailingIndex: 2,
	}
}

func TestSynthesizeCalculator(t *testing.T) {
	s := newTestSynth(t)
	rec := pipeline.ErrorRecord{
		ID:       "rec-001",
		Kind:     catalog.DivisionByZero,
		Message:  "ZeroDivisionError: division by zero",
		Location: &pipeline.Location{File: "calculator.py", Line: 25},
	}

	sugg, err := s.Synthesize(context.Background(), rec, calculatorExcerpt())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if sugg.RecordID != "rec-001" || sugg.Kind != catalog.DivisionByZero {
		t.Errorf("identity = %s/%s", sugg.RecordID, sugg.Kind)
	}
	if sugg.Confidence != 0.90 {
		t.Errorf("Confidence = %v, want 0.90", sugg.Confidence)
	}
	if sugg.Identifiers["denominator"] != "b" {
		t.Errorf("denominator = %q, want b", sugg.Identifiers["denominator"])
	}
	if sugg.OriginalExcerpt != "    return a / b" {
		t.Errorf("OriginalExcerpt = %q", sugg.OriginalExcerpt)
	}
	if !strings.Contains(sugg.ProposedExcerpt, "    if b == 0:") {
		t.Errorf("ProposedExcerpt = %q", sugg.ProposedExcerpt)
	}
	if !strings.HasSuffix(sugg.ProposedExcerpt, "    return a / b") {
		t.Errorf("ProposedExcerpt should end with the original statement: %q", sugg.ProposedExcerpt)
	}
	if sugg.Title != "Guard the divisor against zero" {
		t.Errorf("Title = %q", sugg.Title)
	}
	want := pipeline.Evidence{Definitive: true, HasLocation: true, HasContext: true}
	if sugg.Evidence != want {
		t.Errorf("Evidence = %+v, want %+v", sugg.Evidence, want)
	}
}

func TestSynthesizeWithoutContext(t *testing.T) {
	s := newTestSynth(t)
	rec := pipeline.ErrorRecord{
		ID:       "rec-001",
		Kind:     catalog.DivisionByZero,
		Message:  "ZeroDivisionError: division by zero",
		Location: &pipeline.Location{File: "calculator.py", Line: 25},
	}
	sugg, err := s.Synthesize(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if sugg.Confidence < 0.5 {
		t.Errorf("Confidence = %v, want >= 0.5", sugg.Confidence)
	}
	if !sugg.Evidence.MissingIdentifiers {
		t.Error("expected MissingIdentifiers")
	}
	if !strings.Contains(sugg.ProposedExcerpt, "<denominator>") {
		t.Errorf("ProposedExcerpt = %q, want placeholder", sugg.ProposedExcerpt)
	}
}

func TestSynthesizeMessageIdentifiersWin(t *testing.T) {
	s := newTestSynth(t)
	rec := pipeline.ErrorRecord{
		ID:       "rec-002",
		Kind:     catalog.MissingKey,
		Message:  "KeyError: 'email'",
		Location: &pipeline.Location{File: "users.py", Line: 2},
	}
	ex := &pipeline.Excerpt{
		File:         "users.py",
		StartLine:    1,
		Lines:        []string{"def load(payload):", "    return payload[\"name\"]"},
		FailingIndex: 1,
	}
	sugg, err := s.Synthesize(context.Background(), rec, ex)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := sugg.Identifiers["key"]; got != "email" {
		t.Errorf("key = %q, want email", got)
	}
	if got := sugg.Identifiers["container"]; got != "payload" {
		t.Errorf("container = %q, want payload", got)
	}
	if !strings.Contains(sugg.ProposedExcerpt, `if "email" not in payload:`) {
		t.Errorf("ProposedExcerpt = %q", sugg.ProposedExcerpt)
	}
}

func TestSynthesizeUnclassified(t *testing.T) {
	s := newTestSynth(t)
	rec := pipeline.ErrorRecord{ID: "rec-001", Kind: catalog.Unclassified, Message: "something odd"}
	sugg, err := s.Synthesize(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if sugg.Confidence != 0.35 {
		t.Errorf("Confidence = %v, want 0.35", sugg.Confidence)
	}
	if sugg.Title == "" || sugg.ProposedExcerpt == "" {
		t.Errorf("suggestion not usable: %+v", sugg)
	}
}

func TestSynthesizeCancelledDropsContext(t *testing.T) {
	s := newTestSynth(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := pipeline.ErrorRecord{
		ID:       "rec-001",
		Kind:     catalog.DivisionByZero,
		Message:  "ZeroDivisionError: division by zero",
		Location: &pipeline.Location{File: "calculator.py", Line: 25},
	}
	sugg, err := s.Synthesize(ctx, rec, calculatorExcerpt())
	if err == nil {
		t.Fatal("expected a soft error")
	}
	if sugg.Evidence.HasContext {
		t.Error("cancelled synthesis should not use context")
	}
	if sugg.Title == "" {
		t.Error("suggestion should still be usable")
	}
}

func TestSynthesizeTemplateFailureFallsBack(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
entries:
  - kind: missing-key
    severity: medium
    signatures: ['KeyError']
    template:
      title: 'Broken {{.undeclared}}'
      after: 'x'
`))
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}
	s, err := New(cat, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := pipeline.ErrorRecord{
		ID:       "rec-001",
		Kind:     catalog.MissingKey,
		Message:  "KeyError: 'a'",
		Location: &pipeline.Location{File: "a.py", Line: 3},
	}
	sugg, err := s.Synthesize(context.Background(), rec, nil)
	if err == nil {
		t.Fatal("expected a soft render error")
	}
	want := catalog.MustDefault().Fallback().Template.Title
	if sugg.Title != want {
		t.Errorf("Title = %q, want fallback %q", sugg.Title, want)
	}
	if sugg.Kind != catalog.MissingKey {
		t.Errorf("Kind = %q, suggestion should keep the record kind", sugg.Kind)
	}
}

func TestConfidenceBounds(t *testing.T) {
	for _, loc := range []bool{false, true} {
		for _, ctx := range []bool{false, true} {
			for _, missing := range []bool{false, true} {
				classified := Confidence(pipeline.Evidence{Definitive: true, HasLocation: loc, HasContext: ctx, MissingIdentifiers: missing})
				unclassified := Confidence(pipeline.Evidence{HasLocation: loc, HasContext: ctx, MissingIdentifiers: missing})
				for _, c := range []float64{classified, unclassified} {
					if c < 0 || c > 1 {
						t.Errorf("confidence %v out of range", c)
					}
				}
				if unclassified > classified {
					t.Errorf("loc=%v ctx=%v missing=%v: unclassified %v > classified %v", loc, ctx, missing, unclassified, classified)
				}
			}
		}
	}
}

func TestConfidenceTable(t *testing.T) {
	tests := []struct {
		ev   pipeline.Evidence
		want float64
	}{
		{pipeline.Evidence{Definitive: true, HasLocation: true, HasContext: true}, 0.90},
		{pipeline.Evidence{Definitive: true, HasLocation: true, HasContext: true, MissingIdentifiers: true}, 0.80},
		{pipeline.Evidence{Definitive: true, HasLocation: true}, 0.65},
		{pipeline.Evidence{Definitive: true, HasLocation: true, MissingIdentifiers: true}, 0.55},
		{pipeline.Evidence{}, 0.35},
	}
	for _, tt := range tests {
		if got := Confidence(tt.ev); got != tt.want {
			t.Errorf("Confidence(%+v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}
