package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

const (
	DefaultWindow  = 5
	DefaultTimeout = 5 * time.Second
)

// Options configures a Resolver.
type Options struct {
	Window  int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Resolver turns locations into source excerpts through a Provider.
// A nil provider disables resolution.
type Resolver struct {
	provider Provider
	window   int
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Resolver.
func New(p Provider, opts Options) *Resolver {
	r := &Resolver{
		provider: p,
		window:   opts.Window,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Enabled reports whether a provider is configured.
func (r *Resolver) Enabled() bool {
	return r.provider != nil
}

// Resolve fetches the window around loc. Every failure, including the
// per-fetch timeout, is returned as an error with a nil excerpt; callers
// treat it as a soft failure. With no provider it returns (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, loc pipeline.Location) (*pipeline.Excerpt, error) {
	if r.provider == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.provider.Fetch(ctx, loc.File, loc.Line, r.window)
	if err != nil {
		r.logger.Debug("context fetch failed",
			zap.String("provider", labelOf(r.provider)),
			zap.Stringer("location", loc),
			zap.Error(err))
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}

	start := windowStart(loc.Line, r.window)
	ex := &pipeline.Excerpt{
		File:         loc.File,
		StartLine:    start,
		Lines:        strings.Split(text, "\n"),
		FailingIndex: loc.Line - start,
	}
	if _, ok := ex.FailingLine(); !ok {
		return nil, fmt.Errorf("fetch %s: %w: window does not contain line", loc, ErrNotFound)
	}
	return ex, nil
}

// Check pings the provider if it supports it.
func (r *Resolver) Check(ctx context.Context) error {
	pinger, ok := r.provider.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, labelOf(r.provider), err)
	}
	return nil
}
