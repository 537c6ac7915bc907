package report

import (
	_ "embed"
	"io"
	"strings"
	"text/template"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

//go:embed templates/report.md
var markdownTemplate string

var markdownTmpl = template.Must(template.New("report.md").Funcs(template.FuncMap{
	"percent": percent,
	"fence":   fence,
}).Parse(markdownTemplate))

type markdownData struct {
	Run     *pipeline.AnalysisRun
	Summary Summary
	Pairs   []pipeline.Pair
}

// RenderMarkdown writes the Markdown report used for files and pull requests.
func RenderMarkdown(w io.Writer, run *pipeline.AnalysisRun) error {
	return markdownTmpl.Execute(w, markdownData{
		Run:     run,
		Summary: Summarize(run),
		Pairs:   run.Ordered(),
	})
}

// fence picks a code fence longer than any backtick run in s.
func fence(s string) string {
	longest, cur := 0, 0
	for _, r := range s {
		if r == '`' {
			cur++
			longest = max(longest, cur)
		} else {
			cur = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
