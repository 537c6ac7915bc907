package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/classify"
	"github.com/lucasnoah/fixfactory/internal/config"
	"github.com/lucasnoah/fixfactory/internal/db"
	"github.com/lucasnoah/fixfactory/internal/github"
	"github.com/lucasnoah/fixfactory/internal/logparse"
	"github.com/lucasnoah/fixfactory/internal/observability"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/pgstore"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/report"
	"github.com/lucasnoah/fixfactory/internal/resolve"
	"github.com/lucasnoah/fixfactory/internal/synth"
)

func logger() *zap.Logger {
	return observability.GetLogger()
}

func openDB(c *config.Config) (*db.DB, func(), error) {
	d, err := db.Open(c.Store.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func openStore(c *config.Config) *pipeline.Store {
	return pipeline.NewStore(c.Store.RunsDir)
}

// buildProvider returns nil when resolution is disabled.
func buildProvider(c *config.Config) (resolve.Provider, error) {
	r := c.Resolver
	var p resolve.Provider
	switch r.Provider {
	case "none", "":
		return nil, nil
	case "fs":
		fs, err := resolve.NewFSProvider(r.Root)
		if err != nil {
			return nil, err
		}
		p = fs
	case "git":
		g, err := resolve.NewGitProvider(r.Root, r.Ref)
		if err != nil {
			return nil, err
		}
		p = g
	case "github":
		gh, err := resolve.NewGitHubProvider(resolve.GitHubOptions{
			Token:             r.GitHub.Token,
			Owner:             r.GitHub.Owner,
			Repo:              r.GitHub.Repo,
			Ref:               r.Ref,
			RequestsPerSecond: r.GitHub.RequestsPerSecond,
			BaseURL:           r.GitHub.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		p = gh
	default:
		return nil, fmt.Errorf("unknown resolver provider %q", r.Provider)
	}
	if r.CacheDir != "" {
		cached, err := resolve.NewCachingProvider(p, r.CacheDir)
		if err != nil {
			return nil, err
		}
		p = cached
	}
	return p, nil
}

func loadCatalog(c *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.LoadOrDefault(c.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// pipelineOpts are the per-command knobs for building an orchestrator.
type pipelineOpts struct {
	progress io.Writer
	events   orchestrator.EventLogger
}

func buildOrchestrator(c *config.Config, po pipelineOpts) (*orchestrator.Orchestrator, error) {
	log := logger()
	cat, err := loadCatalog(c)
	if err != nil {
		return nil, err
	}
	provider, err := buildProvider(c)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	s, err := synth.New(cat, log)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}

	progress := orchestrator.MultiSink{orchestrator.NewLogSink(log)}
	if po.progress != nil {
		progress = append(progress, orchestrator.NewWriterSink(po.progress))
	}

	parser := logparse.New(classify.New(cat), logparse.Options{MaxTraceLines: c.Parser.MaxTraceLines})
	resolver := resolve.New(provider, resolve.Options{
		Window:  c.Resolver.Window,
		Timeout: c.Resolver.Timeout,
		Logger:  log,
	})
	return orchestrator.NewOrchestrator(parser, resolver, s, orchestrator.Options{
		Workers:          c.Orchestrator.Workers,
		ProgressBuffer:   c.Orchestrator.ProgressBuffer,
		SynthesisTimeout: c.Synth.Timeout,
		Sink:             progress,
		Events:           po.events,
		Logger:           log,
	}), nil
}

func newSubmitter(c *config.Config, mode string) *github.Submitter {
	runner := &github.ExecRunner{}
	if mode == "" {
		mode = c.GitHub.Mode
	}
	return github.NewSubmitter(github.NewClientWithGit(runner, runner), github.SubmitterOptions{
		RepoDir:      c.GitHub.RepoDir,
		Base:         c.GitHub.Base,
		Mode:         github.Mode(mode),
		ReportDir:    c.GitHub.ReportDir,
		BranchPrefix: c.GitHub.BranchPrefix,
		Labels:       c.GitHub.Labels,
		Logger:       logger(),
	})
}

// sinks holds the consumers a finished run is delivered to.
type sinks struct {
	consumers []report.Named
	history   *db.DB
	closers   []func()
}

func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSinks wires the JSON store, the SQLite history (when enabled) and the
// PostgreSQL sink (when a DSN is set).
func openSinks(ctx context.Context, c *config.Config) (*sinks, error) {
	s := &sinks{}
	s.consumers = append(s.consumers, report.Named{Name: "store", Consumer: openStore(c)})

	if c.Store.History {
		d, cleanup, err := openDB(c)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		s.history = d
		s.closers = append(s.closers, cleanup)
		s.consumers = append(s.consumers, report.Named{Name: "history", Consumer: d})
	}

	if c.Store.PostgresDSN != "" {
		pg, pool, err := pgstore.Open(ctx, c.Store.PostgresDSN, logger())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.consumers = append(s.consumers, report.Named{Name: "postgres", Consumer: pg})
	}
	return s, nil
}

// events returns the history DB as an event logger, or nil.
func (s *sinks) events() orchestrator.EventLogger {
	if s.history == nil {
		return nil
	}
	return s.history
}
