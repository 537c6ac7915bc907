package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are never descended into when searching for a file by name.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"vendor":       true,
}

// FSProvider reads files from a local checkout.
type FSProvider struct {
	root string
}

// NewFSProvider creates a provider rooted at root.
func NewFSProvider(root string) (*FSProvider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	return &FSProvider{root: abs}, nil
}

func (p *FSProvider) Label() string { return "fs:" + p.root }

// Ping checks that the root exists and is a directory.
func (p *FSProvider) Ping(ctx context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", p.root)
	}
	return nil
}

func (p *FSProvider) Fetch(ctx context.Context, path string, line, window int) (string, error) {
	full, err := p.locate(ctx, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", full, err)
	}
	return sliceWindow(string(data), line, window)
}

func (p *FSProvider) locate(ctx context.Context, path string) (string, error) {
	escaped := false
	for _, cand := range pathCandidates(path) {
		full := filepath.Clean(filepath.FromSlash(cand))
		if !filepath.IsAbs(full) {
			full = filepath.Join(p.root, full)
		}
		if !p.within(full) {
			escaped = true
			continue
		}
		if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
			return full, nil
		}
	}

	found, err := p.walkFor(ctx, filepath.Base(filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}
	if found != "" {
		return found, nil
	}
	if escaped {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepo, path)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, path)
}

func (p *FSProvider) within(full string) bool {
	rel, err := filepath.Rel(p.root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var errFound = errors.New("found")

// walkFor returns the lexically first regular file under root named base.
func (p *FSProvider) walkFor(ctx context.Context, base string) (string, error) {
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", nil
	}
	var found string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != p.root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == base && d.Type().IsRegular() {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	return found, nil
}
