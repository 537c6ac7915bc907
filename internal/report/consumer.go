package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Consumer receives a finished (completed or failed) run.
type Consumer interface {
	Consume(ctx context.Context, run *pipeline.AnalysisRun) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, run *pipeline.AnalysisRun) error

func (f ConsumerFunc) Consume(ctx context.Context, run *pipeline.AnalysisRun) error {
	return f(ctx, run)
}

// Format is an output format for rendered reports.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or markdown)", s)
}

// Render writes run in the given format.
func Render(w io.Writer, f Format, run *pipeline.AnalysisRun) error {
	switch f {
	case FormatJSON:
		return RenderRunJSON(w, run)
	case FormatMarkdown:
		return RenderMarkdown(w, run)
	default:
		return RenderText(w, run)
	}
}

// WriterConsumer renders each run to a writer.
type WriterConsumer struct {
	W      io.Writer
	Format Format
}

func (c WriterConsumer) Consume(ctx context.Context, run *pipeline.AnalysisRun) error {
	return Render(c.W, c.Format, run)
}

// Named pairs a consumer with a label for logs and errors.
type Named struct {
	Name     string
	Consumer Consumer
}

// Deliver hands run to every consumer in order. A failing consumer does not
// stop the others; all failures are logged and returned joined.
func Deliver(ctx context.Context, logger *zap.Logger, run *pipeline.AnalysisRun, consumers ...Named) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	for _, c := range consumers {
		if err := c.Consumer.Consume(ctx, run); err != nil {
			logger.Warn("report consumer failed",
				zap.String("consumer", c.Name),
				zap.String("run_id", run.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}
