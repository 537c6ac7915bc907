package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrRunNotFound is returned when no stored run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// Store keeps analysis runs on disk, one directory per run.
type Store struct {
	baseDir string // defaults to ~/.fixfactory/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.fixfactory/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".fixfactory", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// InputPath returns where the raw input of a run is kept.
func (s *Store) InputPath(id string) string {
	return filepath.Join(s.runDir(id), "input.log")
}

// Save writes the run, replacing any earlier version.
func (s *Store) Save(run *AnalysisRun) error {
	if run.ID == "" || strings.ContainsAny(run.ID, `/\`) {
		return fmt.Errorf("invalid run id %q", run.ID)
	}
	if err := WriteJSON(s.runPath(run.ID), run); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}
	return nil
}

// Consume saves the run. It lets the store act as a report consumer.
func (s *Store) Consume(ctx context.Context, run *AnalysisRun) error {
	return s.Save(run)
}

// SaveInput keeps a copy of the raw log a run analysed.
func (s *Store) SaveInput(id string, raw []byte) error {
	return WriteAtomic(s.InputPath(id), raw)
}

// Get reads a run by full ID or by a unique ID prefix.
func (s *Store) Get(id string) (*AnalysisRun, error) {
	full, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	var run AnalysisRun
	if err := ReadJSON(s.runPath(full), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

func (s *Store) resolveID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	if _, err := os.Stat(s.runPath(id)); err == nil {
		return id, nil
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return "", fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), id) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous (%d matches)", id, len(matches))
	}
}

// List returns stored runs, newest first, optionally filtered by phase.
// Pass "" for phaseFilter to return all runs.
func (s *Store) List(phaseFilter Phase) ([]AnalysisRun, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []AnalysisRun
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var run AnalysisRun
		if err := ReadJSON(s.runPath(entry.Name()), &run); err != nil {
			continue // skip broken entries
		}
		if phaseFilter == "" || run.Phase == phaseFilter {
			runs = append(runs, run)
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	full, err := s.resolveID(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(s.runDir(full))
}
