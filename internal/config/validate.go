package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	logLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats  = map[string]bool{"console": true, "json": true}
	providers   = map[string]bool{"none": true, "fs": true, "git": true, "github": true}
	submitModes = map[string]bool{"pr": true, "issue": true}
	catalogExts = map[string]bool{".yaml": true, ".yml": true, ".toml": true}
)

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !logLevels[strings.ToLower(cfg.Logger.Level)] {
		add("logger.level", "unrecognized level %q", cfg.Logger.Level)
	}
	if !logFormats[cfg.Logger.Format] {
		add("logger.format", "must be console or json, got %q", cfg.Logger.Format)
	}

	if cfg.Parser.MaxTraceLines < 1 {
		add("parser.max_trace_lines", "must be at least 1")
	}

	r := cfg.Resolver
	if !providers[r.Provider] {
		add("resolver.provider", "must be one of none, fs, git, github; got %q", r.Provider)
	}
	if (r.Provider == "fs" || r.Provider == "git") && r.Root == "" {
		add("resolver.root", "is required for the %s provider", r.Provider)
	}
	if r.Provider == "github" {
		if r.GitHub.Owner == "" {
			add("resolver.github.owner", "is required for the github provider")
		}
		if r.GitHub.Repo == "" {
			add("resolver.github.repo", "is required for the github provider")
		}
	}
	if r.Window < 0 {
		add("resolver.window", "must not be negative")
	}
	if r.Timeout <= 0 {
		add("resolver.timeout", "must be positive")
	}
	if r.GitHub.RequestsPerSecond < 0 {
		add("resolver.github.requests_per_second", "must not be negative")
	}

	if cfg.Synth.Timeout < 0 {
		add("synth.timeout", "must not be negative")
	}
	if cfg.Orchestrator.Workers < 1 {
		add("orchestrator.workers", "must be at least 1")
	}
	if cfg.Orchestrator.ProgressBuffer < 1 {
		add("orchestrator.progress_buffer", "must be at least 1")
	}

	if p := cfg.Catalog.Path; p != "" && !catalogExts[strings.ToLower(filepath.Ext(p))] {
		add("catalog.path", "unsupported extension %q (want .yaml, .yml or .toml)", filepath.Ext(p))
	}

	if !submitModes[cfg.GitHub.Mode] {
		add("github.mode", "must be pr or issue, got %q", cfg.GitHub.Mode)
	}
	if strings.HasPrefix(cfg.GitHub.BranchPrefix, "-") {
		add("github.branch_prefix", "must not start with -")
	}

	if cfg.Store.RunsDir == "" {
		add("store.runs_dir", "is required")
	}
	if cfg.Store.History && cfg.Store.DBPath == "" {
		add("store.db_path", "is required when history is enabled")
	}

	if cfg.Watch.FlushAfter <= 0 {
		add("watch.flush_after", "must be positive")
	}

	return errs
}
