package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/fixfactory/internal/logparse"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

const (
	DefaultWorkers        = 4
	DefaultProgressBuffer = 64
)

// ErrRunFailed is returned by Analyze when the run ends in the failed phase.
var ErrRunFailed = errors.New("analysis run failed")

// Parser splits decoded log text into records.
type Parser interface {
	Parse(text string) []pipeline.ErrorRecord
}

// Resolver fetches source context for a location.
type Resolver interface {
	Resolve(ctx context.Context, loc pipeline.Location) (*pipeline.Excerpt, error)
	Check(ctx context.Context) error
}

// Synthesizer produces a fix suggestion. The suggestion is always usable; a
// non-nil error is a soft degradation.
type Synthesizer interface {
	Synthesize(ctx context.Context, rec pipeline.ErrorRecord, ex *pipeline.Excerpt) (pipeline.FixSuggestion, error)
}

// EventLogger records run lifecycle events, e.g. into the history database.
type EventLogger interface {
	LogRunEvent(runID, event string, phase pipeline.Phase, detail string) error
}

// Options configures an Orchestrator.
type Options struct {
	Workers          int
	ProgressBuffer   int
	// SynthesisTimeout bounds each Synthesize call; zero means no bound.
	SynthesisTimeout time.Duration
	Sink             Sink
	Events           EventLogger
	Logger           *zap.Logger
}

type notification struct {
	runID            string
	phase            pipeline.Phase
	completed, total int
}

// Orchestrator drives analysis runs through their phases.
type Orchestrator struct {
	parser   Parser
	resolver Resolver
	synth    Synthesizer
	events   EventLogger
	workers  int
	timeout  time.Duration
	logger   *zap.Logger

	sink    Sink
	mu      sync.RWMutex
	closed  bool
	notes   chan notification
	drained chan struct{}
	dropped atomic.Int64
}

// NewOrchestrator creates an Orchestrator and starts its progress notifier.
// Call Close to stop the notifier.
func NewOrchestrator(parser Parser, resolver Resolver, synth Synthesizer, opts Options) *Orchestrator {
	o := &Orchestrator{
		parser:   parser,
		resolver: resolver,
		synth:    synth,
		events:   opts.Events,
		workers:  opts.Workers,
		timeout:  opts.SynthesisTimeout,
		logger:   opts.Logger,
		sink:     opts.Sink,
		drained:  make(chan struct{}),
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	if o.sink == nil {
		o.sink = SinkFunc(func(string, pipeline.Phase, int, int) {})
	}
	buf := opts.ProgressBuffer
	if buf <= 0 {
		buf = DefaultProgressBuffer
	}
	o.notes = make(chan notification, buf)
	go o.drain()
	return o
}

// Input is one log to analyse.
type Input struct {
	Source string
	Raw    []byte
}

// Analyze runs the whole pipeline over in. The returned run is never nil.
// When the run fails (undecodable input, unreachable provider, cancellation)
// the run holds everything gathered so far and the error wraps ErrRunFailed.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) (*pipeline.AnalysisRun, error) {
	run := &pipeline.AnalysisRun{
		ID:          uuid.NewString(),
		Source:      in.Source,
		Phase:       pipeline.PhaseReceived,
		Records:     []pipeline.ErrorRecord{},
		Suggestions: make(map[string]pipeline.FixSuggestion),
		Errors:      []pipeline.RunError{},
		StartedAt:   time.Now().UTC(),
	}
	log := o.logger.With(zap.String("run_id", run.ID), zap.String("source", in.Source))
	_ = o.logEvent(run, "received", "")

	// parsing
	o.advance(run, EventStart, 0, 0)
	if ctx.Err() != nil {
		return o.fail(run, pipeline.ReasonCancelled)
	}
	text, err := logparse.Decode(in.Raw)
	if err != nil {
		return o.fail(run, err.Error())
	}
	run.Records = o.parser.Parse(text)
	log.Debug("parsed log", zap.Int("records", len(run.Records)))

	// context resolution
	var located []int
	for i, rec := range run.Records {
		if rec.Location != nil {
			located = append(located, i)
		}
	}
	o.advance(run, EventParsed, 0, len(located))
	if ctx.Err() != nil {
		return o.fail(run, pipeline.ReasonCancelled)
	}
	excerpts := make([]*pipeline.Excerpt, len(run.Records))
	if len(located) > 0 {
		if err := o.resolver.Check(ctx); err != nil {
			return o.fail(run, err.Error())
		}
		o.resolveAll(ctx, run, located, excerpts)
	}

	// synthesis
	o.advance(run, EventResolved, 0, len(run.Records))
	if ctx.Err() != nil {
		return o.fail(run, pipeline.ReasonCancelled)
	}
	o.synthesizeAll(ctx, run, excerpts)
	if ctx.Err() != nil {
		return o.fail(run, pipeline.ReasonCancelled)
	}

	run.FinishedAt = time.Now().UTC()
	o.advance(run, EventSynthesized, len(run.Suggestions), len(run.Records))
	log.Info("run completed",
		zap.Int("records", len(run.Records)),
		zap.Int("suggestions", len(run.Suggestions)),
		zap.Int("soft_errors", len(run.Errors)))
	return run, nil
}

func (o *Orchestrator) resolveAll(ctx context.Context, run *pipeline.AnalysisRun, located []int, excerpts []*pipeline.Excerpt) {
	errs := make([]error, len(run.Records))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, i := range located {
		i := i
		loc := *run.Records[i].Location
		g.Go(func() error {
			excerpts[i], errs[i] = o.resolver.Resolve(gctx, loc)
			o.notify(run.ID, run.Phase, int(done.Add(1)), len(located))
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range located {
		if errs[i] != nil {
			excerpts[i] = nil
			o.softError(run, run.Records[i].ID, errs[i])
		}
	}
}

func (o *Orchestrator) synthesizeAll(ctx context.Context, run *pipeline.AnalysisRun, excerpts []*pipeline.Excerpt) {
	suggestions := make([]pipeline.FixSuggestion, len(run.Records))
	errs := make([]error, len(run.Records))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, rec := range run.Records {
		i, rec := i, rec
		g.Go(func() error {
			sctx, cancel := gctx, context.CancelFunc(func() {})
			if o.timeout > 0 {
				sctx, cancel = context.WithTimeout(gctx, o.timeout)
			}
			defer cancel()
			suggestions[i], errs[i] = o.synth.Synthesize(sctx, rec, excerpts[i])
			o.notify(run.ID, run.Phase, int(done.Add(1)), len(run.Records))
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range run.Records {
		run.Suggestions[rec.ID] = suggestions[i]
		if errs[i] != nil {
			o.softError(run, rec.ID, errs[i])
		}
	}
}

func (o *Orchestrator) softError(run *pipeline.AnalysisRun, recordID string, err error) {
	run.Errors = append(run.Errors, pipeline.RunError{
		RecordID: recordID,
		Phase:    run.Phase,
		Message:  err.Error(),
	})
	o.logger.Debug("soft failure",
		zap.String("run_id", run.ID),
		zap.String("record", recordID),
		zap.String("phase", string(run.Phase)),
		zap.Error(err))
}

// advance applies a transition that the orchestrator's own control flow
// guarantees is valid.
func (o *Orchestrator) advance(run *pipeline.AnalysisRun, e Event, completed, total int) {
	next, err := Next(run.Phase, e)
	if err != nil {
		panic(fmt.Sprintf("orchestrator: %v", err))
	}
	run.Phase = next
	_ = o.logEvent(run, string(e), "")
	o.notify(run.ID, run.Phase, completed, total)
}

func (o *Orchestrator) fail(run *pipeline.AnalysisRun, reason string) (*pipeline.AnalysisRun, error) {
	from := run.Phase
	next, err := Next(run.Phase, EventFail)
	if err != nil {
		return run, err
	}
	run.Phase = next
	run.Reason = reason
	run.FinishedAt = time.Now().UTC()
	_ = o.logEvent(run, string(EventFail), reason)
	o.notify(run.ID, run.Phase, len(run.Suggestions), len(run.Records))
	o.logger.Warn("run failed",
		zap.String("run_id", run.ID),
		zap.String("during", string(from)),
		zap.String("reason", reason))
	return run, fmt.Errorf("%w during %s: %s", ErrRunFailed, from, reason)
}

func (o *Orchestrator) logEvent(run *pipeline.AnalysisRun, event, detail string) error {
	if o.events == nil {
		return nil
	}
	if err := o.events.LogRunEvent(run.ID, event, run.Phase, detail); err != nil {
		o.logger.Debug("log run event", zap.String("event", event), zap.Error(err))
		return err
	}
	return nil
}

// notify queues a progress notification without blocking. When the queue is
// full the notification is dropped.
func (o *Orchestrator) notify(runID string, phase pipeline.Phase, completed, total int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.notes <- notification{runID: runID, phase: phase, completed: completed, total: total}:
	default:
		o.dropped.Add(1)
	}
}

func (o *Orchestrator) drain() {
	defer close(o.drained)
	for n := range o.notes {
		o.deliver(n)
	}
}

func (o *Orchestrator) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("progress sink panicked", zap.Any("panic", r))
		}
	}()
	o.sink.Notify(n.runID, n.phase, n.completed, n.total)
}

// Dropped returns how many notifications were discarded because the queue was full.
func (o *Orchestrator) Dropped() int64 {
	return o.dropped.Load()
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to end.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.notes)
	}
	o.mu.Unlock()

	select {
	case <-o.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for progress sink: %w", ctx.Err())
	}
}
