package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpcloud/tail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type collector struct {
	mu     sync.Mutex
	chunks []string
	ch     chan string
}

func newCollector() *collector { return &collector{ch: make(chan string, 16)} }

func (c *collector) emit(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	c.chunks = append(c.chunks, string(chunk))
	c.mu.Unlock()
	c.ch <- string(chunk)
	return nil
}

func (c *collector) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-c.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a burst")
		return ""
	}
}

func send(lines chan<- *tail.Line, texts ...string) {
	for _, s := range texts {
		lines <- &tail.Line{Text: s, Time: time.Now()}
	}
}

func TestBatchGroupsBursts(t *testing.T) {
	defer goleak.VerifyNone(t)

	lines := make(chan *tail.Line)
	c := newCollector()
	done := make(chan error, 1)
	go func() { done <- batch(context.Background(), lines, 30*time.Millisecond, 100, zap.NewNop(), c.emit) }()

	send(lines, "2024-01-15 10:30:45 ERROR boom", "Traceback (most recent call last):")
	assert.Equal(t, "2024-01-15 10:30:45 ERROR boom\nTraceback (most recent call last):\n", c.next(t))

	send(lines, "KeyError: 'email'")
	assert.Equal(t, "KeyError: 'email'\n", c.next(t))

	close(lines)
	require.NoError(t, <-done)
}

func TestBatchFlushesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	lines := make(chan *tail.Line, 2)
	send(lines, "a", "b")
	close(lines)

	c := newCollector()
	require.NoError(t, batch(context.Background(), lines, time.Hour, 100, zap.NewNop(), c.emit))
	assert.Equal(t, []string{"a\nb\n"}, c.chunks)
}

func TestBatchMaxLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	lines := make(chan *tail.Line, 5)
	send(lines, "1", "2", "3", "4", "5")
	close(lines)

	c := newCollector()
	require.NoError(t, batch(context.Background(), lines, time.Hour, 2, zap.NewNop(), c.emit))
	assert.Equal(t, []string{"1\n2\n", "3\n4\n", "5\n"}, c.chunks)
}

func TestBatchSkipsReadErrors(t *testing.T) {
	lines := make(chan *tail.Line, 3)
	lines <- &tail.Line{Text: "ok"}
	lines <- &tail.Line{Err: errors.New("too long")}
	lines <- &tail.Line{Text: "also ok"}
	close(lines)

	c := newCollector()
	require.NoError(t, batch(context.Background(), lines, time.Hour, 100, zap.NewNop(), c.emit))
	assert.Equal(t, []string{"ok\nalso ok\n"}, c.chunks)
}

func TestBatchStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan *tail.Line)
	c := newCollector()
	done := make(chan error, 1)
	go func() { done <- batch(ctx, lines, time.Hour, 100, zap.NewNop(), c.emit) }()

	send(lines, "pending")
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, c.chunks, "pending burst is dropped on cancel")
}

func TestBatchEmitErrorStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	lines := make(chan *tail.Line, 1)
	send(lines, "x")
	wantErr := errors.New("store down")
	err := batch(context.Background(), lines, 10*time.Millisecond, 100, zap.NewNop(), func(context.Context, []byte) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestFollowerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-15 10:30:45 ERROR [calculator.py:25] ZeroDivisionError: division by zero\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	f := New(path, Options{FlushAfter: 50 * time.Millisecond, FromStart: true, Poll: true})
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, c.emit) }()

	assert.Contains(t, c.next(t), "ZeroDivisionError")

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString("2024-01-15 10:31:02 ERROR [users.py:88] KeyError: 'email'\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	second := c.next(t)
	assert.True(t, strings.Contains(second, "KeyError"), "second burst = %q", second)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFollowerMissingFile(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "nope.log"), Options{})
	err := f.Run(context.Background(), func(context.Context, []byte) error { return nil })
	require.Error(t, err)
}
