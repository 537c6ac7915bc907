package orchestrator

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Sink receives progress notifications. Notify is called from a single
// goroutine, never from the goroutine advancing the run.
type Sink interface {
	Notify(runID string, phase pipeline.Phase, completed, total int)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(runID string, phase pipeline.Phase, completed, total int)

func (f SinkFunc) Notify(runID string, phase pipeline.Phase, completed, total int) {
	f(runID, phase, completed, total)
}

// MultiSink fans a notification out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Notify(runID string, phase pipeline.Phase, completed, total int) {
	for _, s := range m {
		s.Notify(runID, phase, completed, total)
	}
}

// WriterSink prints one human-readable line per notification.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Notify(runID string, phase pipeline.Phase, completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if total > 0 {
		fmt.Fprintf(s.w, "[%s] %s %d/%d\n", short, phase, completed, total)
		return
	}
	fmt.Fprintf(s.w, "[%s] %s\n", short, phase)
}

// LogSink logs notifications at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("progress")}
}

func (s *LogSink) Notify(runID string, phase pipeline.Phase, completed, total int) {
	s.logger.Debug("run progress",
		zap.String("run_id", runID),
		zap.String("phase", string(phase)),
		zap.Int("completed", completed),
		zap.Int("total", total))
}
