package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

const (
	DefaultFlushAfter = 2 * time.Second
	DefaultMaxLines   = 1000
)

// EmitFunc receives one burst of log lines, newline-joined.
type EmitFunc func(ctx context.Context, chunk []byte) error

// Options configures a Follower.
type Options struct {
	// FlushAfter is the quiet period that ends a burst.
	FlushAfter time.Duration
	// MaxLines flushes a burst early once it holds this many lines.
	MaxLines  int
	FromStart bool
	Poll      bool
	Logger    *zap.Logger
}

// Follower tails a growing log file and hands each burst of lines to an EmitFunc.
type Follower struct {
	path string
	opts Options
	log  *zap.Logger
}

func New(path string, opts Options) *Follower {
	if opts.FlushAfter <= 0 {
		opts.FlushAfter = DefaultFlushAfter
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Follower{path: path, opts: opts, log: log.Named("watch")}
}

// Run follows the file until ctx is cancelled or emit fails. Cancellation
// is not an error; a burst still pending at that point is dropped.
func (f *Follower) Run(ctx context.Context, emit EmitFunc) error {
	loc := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if f.opts.FromStart {
		loc = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	t, err := tail.TailFile(f.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      f.opts.Poll,
		Location:  loc,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", f.path, err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	f.log.Info("following log", zap.String("path", f.path), zap.Duration("flush_after", f.opts.FlushAfter))
	return batch(ctx, t.Lines, f.opts.FlushAfter, f.opts.MaxLines, f.log, emit)
}

// batch groups lines into bursts separated by flushAfter of silence.
// It returns when ctx is done, lines is closed, or emit fails.
func batch(ctx context.Context, lines <-chan *tail.Line, flushAfter time.Duration, maxLines int, log *zap.Logger, emit EmitFunc) error {
	var pending []string
	timer := time.NewTimer(flushAfter)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		chunk := []byte(strings.Join(pending, "\n") + "\n")
		pending = nil
		return emit(ctx, chunk)
	}
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				log.Debug("dropping pending burst on shutdown", zap.Int("lines", len(pending)))
			}
			return nil

		case line, ok := <-lines:
			if !ok {
				stopTimer()
				return flush()
			}
			if line.Err != nil {
				log.Warn("error reading log", zap.Error(line.Err))
				continue
			}
			pending = append(pending, line.Text)
			stopTimer()
			if len(pending) >= maxLines {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			timer.Reset(flushAfter)

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
