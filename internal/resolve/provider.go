package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned by providers when the file or line does not exist.
	ErrNotFound = errors.New("source not found")
	// ErrOutsideRepo is returned when a path resolves outside the repository root.
	ErrOutsideRepo = errors.New("path escapes repository root")
	// ErrUnreachable wraps a failed provider health check.
	ErrUnreachable = errors.New("provider unreachable")
)

// Provider reads source text from a repository. Fetch returns the lines
// [max(1, line-window), line+window] of path joined by "\n". Implementations
// must be safe for concurrent use.
type Provider interface {
	Fetch(ctx context.Context, path string, line, window int) (string, error)
}

// Pinger is implemented by providers that can check they are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Labeler is implemented by providers that have a stable name, used as part
// of cache keys and log fields.
type Labeler interface {
	Label() string
}

func labelOf(p Provider) string {
	if l, ok := p.(Labeler); ok {
		return l.Label()
	}
	return fmt.Sprintf("%T", p)
}

func windowStart(line, window int) int {
	return max(1, line-window)
}

// sliceWindow cuts the window around line out of a whole file.
func sliceWindow(content string, line, window int) (string, error) {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if line < 1 || line > len(lines) {
		return "", fmt.Errorf("%w: line %d outside file of %d lines", ErrNotFound, line, len(lines))
	}
	start := windowStart(line, window)
	end := min(len(lines), line+window)
	return strings.Join(lines[start-1:end], "\n"), nil
}

// pathCandidates lists the repository-relative paths a logged path may refer
// to, most specific first. Logs from containers usually carry absolute paths
// such as /app/pkg/file.py for a checkout-relative pkg/file.py.
func pathCandidates(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(p)
	trimmed := strings.TrimLeft(p, "/")
	add(trimmed)
	add(strings.TrimPrefix(trimmed, "app/"))
	add(path.Base(p))
	return out
}
