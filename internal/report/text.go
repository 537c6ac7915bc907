package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

var (
	headingColor  = color.New(color.FgCyan, color.Bold)
	okColor       = color.New(color.FgGreen, color.Bold)
	failColor     = color.New(color.FgRed, color.Bold)
	dimColor      = color.New(color.Faint)
	removedColor  = color.New(color.FgRed)
	addedColor    = color.New(color.FgGreen)
	severityColor = map[catalog.Severity]*color.Color{
		catalog.SeverityCritical: color.New(color.FgRed, color.Bold),
		catalog.SeverityHigh:     color.New(color.FgRed),
		catalog.SeverityMedium:   color.New(color.FgYellow),
		catalog.SeverityLow:      color.New(color.FgCyan),
	}
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

// RenderText writes a human-readable report. Colour follows fatih/color's
// terminal detection (color.NoColor).
func RenderText(w io.Writer, run *pipeline.AnalysisRun) error {
	tw := &textWriter{w: w}
	s := Summarize(run)

	tw.printf("%s\n\n", headingColor.Sprintf("Run %s", run.ShortID()))
	if run.Source != "" {
		tw.printf("  Source:      %s\n", run.Source)
	}
	if run.Failed() {
		tw.printf("  Status:      %s (%s)\n", failColor.Sprint(run.Phase), run.Reason)
	} else {
		tw.printf("  Status:      %s\n", okColor.Sprint(run.Phase))
	}
	tw.printf("  Errors:      %d\n", s.Total)
	tw.printf("  Suggestions: %d\n", s.Suggestions)
	if s.Suggestions > 0 {
		tw.printf("  Confidence:  %s mean\n", percent(s.MeanConfidence))
	}
	if s.Oldest != nil {
		tw.printf("  Window:      %s .. %s\n", s.Oldest.Format("2006-01-02 15:04:05"), s.Newest.Format("2006-01-02 15:04:05"))
	}
	tw.printf("\n")

	if s.Total == 0 {
		tw.printf("%s\n", okColor.Sprint("No errors found."))
		return tw.err
	}

	tw.printf("%s\n\n", headingColor.Sprint("By kind"))
	for _, kc := range s.ByKind {
		tw.printf("  %-20s %d\n", kc.Kind, kc.Count)
	}
	tw.printf("\n")

	tw.printf("%s\n\n", headingColor.Sprintf("Findings (%d)", s.Total))
	pairs := run.Ordered()
	for i, p := range pairs {
		tw.renderPair(p)
		if i < len(pairs)-1 {
			tw.printf("\n")
		}
	}

	if len(run.Errors) > 0 {
		tw.printf("\n%s\n\n", headingColor.Sprintf("Warnings (%d)", len(run.Errors)))
		for _, e := range run.Errors {
			tw.printf("  %s %s\n", dimColor.Sprintf("[%s %s]", e.Phase, e.RecordID), e.Message)
		}
	}
	return tw.err
}

func (tw *textWriter) renderPair(p pipeline.Pair) {
	r := p.Record
	sevColor := severityColor[r.Severity]
	if sevColor == nil {
		sevColor = dimColor
	}
	label := strings.ToUpper(r.Severity.String())
	tw.printf("  %s %s %s\n", sevColor.Sprintf("%-8s", label), r.ID, r.Kind)
	tw.printf("  %s\n", r.Message)
	if r.Location != nil {
		tw.printf("  %s\n", dimColor.Sprintf("at %s", r.Location))
	}
	if p.Suggestion == nil {
		return
	}
	sg := p.Suggestion
	tw.printf("  → %s %s\n", sg.Title, dimColor.Sprintf("(%s confidence)", percent(sg.Confidence)))
	for _, line := range strings.Split(sg.OriginalExcerpt, "\n") {
		tw.printf("    %s\n", removedColor.Sprint("- "+line))
	}
	for _, line := range strings.Split(sg.ProposedExcerpt, "\n") {
		tw.printf("    %s\n", addedColor.Sprint("+ "+line))
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
