package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Bump when cacheEntry changes shape.
const cacheSchemaVersion uint16 = 1

type cacheEntry struct {
	Schema   uint16
	Label    string
	Path     string
	Line     int
	Window   int
	Text     string
	StoredAt time.Time
}

// CachingProvider keeps successful fetches of another provider on disk.
// Failures are never cached.
type CachingProvider struct {
	mu    sync.RWMutex
	next  Provider
	label string
	dir   string
}

// NewCachingProvider wraps next with a cache stored under dir.
func NewCachingProvider(next Provider, dir string) (*CachingProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &CachingProvider{next: next, label: labelOf(next), dir: dir}, nil
}

func (c *CachingProvider) Label() string { return "cache:" + c.label }

func (c *CachingProvider) Ping(ctx context.Context) error {
	if p, ok := c.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *CachingProvider) Fetch(ctx context.Context, path string, line, window int) (string, error) {
	key := c.pathFor(path, line, window)
	if text, ok := c.get(key); ok {
		return text, nil
	}
	text, err := c.next.Fetch(ctx, path, line, window)
	if err != nil {
		return "", err
	}
	// A cache write failure only costs a refetch next time.
	_ = c.put(key, &cacheEntry{
		Schema:   cacheSchemaVersion,
		Label:    c.label,
		Path:     path,
		Line:     line,
		Window:   window,
		Text:     text,
		StoredAt: time.Now().UTC(),
	})
	return text, nil
}

func (c *CachingProvider) pathFor(path string, line, window int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d", c.label, path, line, window))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".mp")
}

func (c *CachingProvider) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := os.ReadFile(key)
	if err != nil {
		return "", false
	}
	var e cacheEntry
	if err := msgpack.Unmarshal(data, &e); err != nil || e.Schema != cacheSchemaVersion {
		return "", false
	}
	return e.Text, true
}

func (c *CachingProvider) put(key string, e *cacheEntry) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(f.Name()))
		}
	}()
	if err = msgpack.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), key)
}
