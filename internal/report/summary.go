package report

import (
	"sort"
	"time"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// KindCount is the number of records of one kind.
type KindCount struct {
	Kind  catalog.Kind `json:"kind"`
	Count int          `json:"count"`
}

// SeverityCount is the number of records at one severity.
type SeverityCount struct {
	Severity catalog.Severity `json:"severity"`
	Count    int              `json:"count"`
}

// Summary aggregates a run for display.
type Summary struct {
	RunID          string          `json:"run_id"`
	Phase          pipeline.Phase  `json:"phase"`
	Reason         string          `json:"reason,omitempty"`
	Total          int             `json:"total"`
	Suggestions    int             `json:"suggestions"`
	SoftErrors     int             `json:"soft_errors"`
	ByKind         []KindCount     `json:"by_kind"`
	BySeverity     []SeverityCount `json:"by_severity"`
	Files          []string        `json:"files"`
	Oldest         *time.Time      `json:"oldest,omitempty"`
	Newest         *time.Time      `json:"newest,omitempty"`
	MeanConfidence float64         `json:"mean_confidence"`
}

// Summarize computes the summary of run. Kinds are listed in catalog order,
// severities from most to least severe, files alphabetically. The time
// window covers only records whose timestamp carries a year.
func Summarize(run *pipeline.AnalysisRun) Summary {
	s := Summary{
		RunID:       run.ID,
		Phase:       run.Phase,
		Reason:      run.Reason,
		Total:       len(run.Records),
		Suggestions: len(run.Suggestions),
		SoftErrors:  len(run.Errors),
		ByKind:      []KindCount{},
		BySeverity:  []SeverityCount{},
		Files:       []string{},
	}

	kinds := make(map[catalog.Kind]int)
	sevs := make(map[catalog.Severity]int)
	files := make(map[string]bool)
	for _, r := range run.Records {
		kinds[r.Kind]++
		sevs[r.Severity]++
		if r.Location != nil {
			files[r.Location.File] = true
		}
		// Year-less stamps (syslog) cannot be ordered against dated ones.
		if r.Timestamp != nil && r.Timestamp.Year() > 0 {
			ts := *r.Timestamp
			if s.Oldest == nil || ts.Before(*s.Oldest) {
				s.Oldest = &ts
			}
			if s.Newest == nil || ts.After(*s.Newest) {
				s.Newest = &ts
			}
		}
	}

	for _, k := range catalog.Kinds {
		if n := kinds[k]; n > 0 {
			s.ByKind = append(s.ByKind, KindCount{Kind: k, Count: n})
		}
	}
	for sev := catalog.SeverityCritical; sev >= catalog.SeverityLow; sev-- {
		if n := sevs[sev]; n > 0 {
			s.BySeverity = append(s.BySeverity, SeverityCount{Severity: sev, Count: n})
		}
	}
	for f := range files {
		s.Files = append(s.Files, f)
	}
	sort.Strings(s.Files)

	if len(run.Suggestions) > 0 {
		var sum float64
		for _, sg := range run.Suggestions {
			sum += sg.Confidence
		}
		s.MeanConfidence = float64(int(sum/float64(len(run.Suggestions))*100+0.5)) / 100
	}
	return s
}
