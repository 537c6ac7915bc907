package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		writeFile(t, dir, rel, content)
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestGitProviderReadsCommittedContent(t *testing.T) {
	dir := initRepo(t, map[string]string{"svc/calculator.py": numberedLines(30)})
	// Uncommitted edits must not show up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc", "calculator.py"), []byte("changed\n"), 0o644))

	p, err := NewGitProvider(dir, "")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))

	got, err := p.Fetch(ctx, "/app/svc/calculator.py", 25, 1)
	require.NoError(t, err)
	assert.Equal(t, "line 24\nline 25\nline 26", got)

	got, err = p.Fetch(ctx, "/deploy/calculator.py", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\nline 3", got)

	_, err = p.Fetch(ctx, "nope.py", 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitProviderBadRef(t *testing.T) {
	dir := initRepo(t, map[string]string{"a.py": "x\n"})
	p, err := NewGitProvider(dir, "does-not-exist")
	require.NoError(t, err)
	assert.Error(t, p.Ping(context.Background()))
}

func TestNewGitProviderNotARepo(t *testing.T) {
	_, err := NewGitProvider(t.TempDir(), "")
	assert.Error(t, err)
}
