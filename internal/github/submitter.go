package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/report"
)

// ErrNothingToSubmit is returned for runs that produced no suggestions.
var ErrNothingToSubmit = errors.New("run has no fix suggestions")

// Mode selects what the submitter opens on GitHub.
type Mode string

const (
	ModePR    Mode = "pr"
	ModeIssue Mode = "issue"
)

const (
	DefaultReportDir    = ".fixfactory/reports"
	DefaultBranchPrefix = "fixfactory/run-"
)

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	RepoDir      string
	Base         string
	Mode         Mode
	ReportDir    string // relative to RepoDir
	BranchPrefix string
	Labels       []string // issue mode only
	Logger       *zap.Logger
}

// Submitter publishes a run's Markdown report as a pull request or an issue.
type Submitter struct {
	client *Client
	opts   SubmitterOptions
	log    *zap.Logger
}

// SubmitResult describes what was opened.
type SubmitResult struct {
	URL     string
	Branch  string
	Reused  bool
	Created Mode
}

// NewSubmitter creates a submitter. Empty options fall back to PR mode and
// the default report directory and branch prefix.
func NewSubmitter(client *Client, opts SubmitterOptions) *Submitter {
	if opts.Mode == "" {
		opts.Mode = ModePR
	}
	if opts.ReportDir == "" {
		opts.ReportDir = DefaultReportDir
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = DefaultBranchPrefix
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{client: client, opts: opts, log: log.Named("submitter")}
}

// Consume submits the run, discarding the result.
func (s *Submitter) Consume(ctx context.Context, run *pipeline.AnalysisRun) error {
	_, err := s.Submit(ctx, run)
	return err
}

// Submit opens a PR (or issue) for run.
func (s *Submitter) Submit(ctx context.Context, run *pipeline.AnalysisRun) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(run.Suggestions) == 0 {
		return nil, ErrNothingToSubmit
	}

	var body bytes.Buffer
	if err := report.RenderMarkdown(&body, run); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	title := Title(run)

	switch s.opts.Mode {
	case ModeIssue:
		url, err := s.client.CreateIssue(IssueCreateOpts{Title: title, Body: body.String(), Labels: s.opts.Labels})
		if err != nil {
			return nil, err
		}
		s.log.Info("opened issue", zap.String("run_id", run.ID), zap.String("url", url))
		return &SubmitResult{URL: url, Created: ModeIssue}, nil
	case ModePR:
		return s.submitPR(ctx, run, title, body.Bytes())
	default:
		return nil, fmt.Errorf("unknown submit mode %q", s.opts.Mode)
	}
}

func (s *Submitter) submitPR(ctx context.Context, run *pipeline.AnalysisRun, title string, body []byte) (*SubmitResult, error) {
	branch := s.opts.BranchPrefix + run.ShortID()
	if err := validBranch(branch); err != nil {
		return nil, err
	}

	if err := s.commitReport(run, branch, title, body); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.client.PushBranch(s.opts.RepoDir, branch); err != nil {
		return nil, err
	}

	existing, err := s.client.FindPRByBranch(branch)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Info("reusing pull request", zap.String("run_id", run.ID), zap.String("url", existing.URL))
		return &SubmitResult{URL: existing.URL, Branch: branch, Reused: true, Created: ModePR}, nil
	}

	pr, err := s.client.CreatePR(PRCreateOpts{Title: title, Body: string(body), Branch: branch, Base: s.opts.Base})
	if err != nil {
		return nil, err
	}
	s.log.Info("opened pull request", zap.String("run_id", run.ID), zap.String("url", pr.URL))
	return &SubmitResult{URL: pr.URL, Branch: branch, Created: ModePR}, nil
}

// commitReport writes the report on branch and commits it, then returns the
// working tree to the branch it started on.
func (s *Submitter) commitReport(run *pipeline.AnalysisRun, branch, title string, body []byte) (err error) {
	git := s.client.git
	if git == nil {
		return fmt.Errorf("git runner not configured")
	}
	dir := s.opts.RepoDir

	orig, err := git.RunGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return fmt.Errorf("read current branch: %w", err)
	}
	if _, err := git.RunGit(dir, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	defer func() {
		if _, coErr := git.RunGit(dir, "checkout", orig); coErr != nil && err == nil {
			err = fmt.Errorf("restore branch %s: %w", orig, coErr)
		}
	}()

	rel := filepath.ToSlash(filepath.Join(s.opts.ReportDir, run.ID+".md"))
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	if err := pipeline.WriteAtomic(abs, body); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if _, err := git.RunGit(dir, "add", "--", rel); err != nil {
		return fmt.Errorf("stage report: %w", err)
	}
	if _, err := git.RunGit(dir, "commit", "-m", title, "--", rel); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

// Title returns "Fix <kind>: <title>" for the run's leading suggestion:
// highest confidence, ties broken by log order.
func Title(run *pipeline.AnalysisRun) string {
	var sugs []pipeline.FixSuggestion
	for _, p := range run.Ordered() {
		if p.Suggestion != nil {
			sugs = append(sugs, *p.Suggestion)
		}
	}
	if len(sugs) == 0 {
		return fmt.Sprintf("fixfactory run %s", run.ShortID())
	}
	sort.SliceStable(sugs, func(i, j int) bool { return sugs[i].Confidence > sugs[j].Confidence })
	title := fmt.Sprintf("Fix %s: %s", sugs[0].Kind, sugs[0].Title)
	if n := len(sugs) - 1; n > 0 {
		title += fmt.Sprintf(" (+%d more)", n)
	}
	return title
}
