package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitProvider reads files as of a commit in a local git repository, so
// excerpts match the deployed revision rather than the working tree.
type GitProvider struct {
	mu   sync.Mutex
	repo *git.Repository
	dir  string
	ref  string
}

// NewGitProvider opens the repository at dir. An empty ref means HEAD.
func NewGitProvider(dir, ref string) (*GitProvider, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", dir, err)
	}
	if ref == "" {
		ref = "HEAD"
	}
	return &GitProvider{repo: repo, dir: dir, ref: ref}, nil
}

func (p *GitProvider) Label() string { return "git:" + p.dir + "@" + p.ref }

func (p *GitProvider) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.commit()
	return err
}

func (p *GitProvider) commit() (*object.Commit, error) {
	hash, err := p.repo.ResolveRevision(plumbing.Revision(p.ref))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.ref, err)
	}
	c, err := p.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return c, nil
}

func (p *GitProvider) Fetch(ctx context.Context, filePath string, line, window int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.commit()
	if err != nil {
		return "", err
	}
	f, err := p.find(c, filePath)
	if err != nil {
		return "", err
	}
	content, err := f.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return sliceWindow(content, line, window)
}

func (p *GitProvider) find(c *object.Commit, filePath string) (*object.File, error) {
	for _, cand := range pathCandidates(filePath) {
		if path.IsAbs(cand) {
			continue
		}
		f, err := c.File(cand)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("lookup %s: %w", cand, err)
		}
	}

	// Fall back to the first file in the tree with the same base name.
	base := path.Base(filePath)
	iter, err := c.Files()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer iter.Close()
	for {
		f, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		if path.Base(f.Name) == base {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, filePath, p.ref)
}
