package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: FIXFACTORY_RESOLVER_WINDOW=8.
const EnvPrefix = "FIXFACTORY"

// SetDefaults registers every key with its default value. Keys must be
// registered for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.add_source", false)

	v.SetDefault("parser.max_trace_lines", 20)

	v.SetDefault("resolver.provider", "fs")
	v.SetDefault("resolver.root", ".")
	v.SetDefault("resolver.ref", "HEAD")
	v.SetDefault("resolver.window", 5)
	v.SetDefault("resolver.timeout", "5s")
	v.SetDefault("resolver.cache_dir", "")
	v.SetDefault("resolver.github.owner", "")
	v.SetDefault("resolver.github.repo", "")
	v.SetDefault("resolver.github.token", "")
	v.SetDefault("resolver.github.base_url", "")
	v.SetDefault("resolver.github.requests_per_second", 5.0)

	v.SetDefault("synth.timeout", "2s")

	v.SetDefault("orchestrator.workers", 4)
	v.SetDefault("orchestrator.progress_buffer", 64)

	v.SetDefault("catalog.path", "")

	v.SetDefault("github.mode", "pr")
	v.SetDefault("github.base", "")
	v.SetDefault("github.repo_dir", ".")
	v.SetDefault("github.report_dir", ".fixfactory/reports")
	v.SetDefault("github.branch_prefix", "fixfactory/run-")
	v.SetDefault("github.labels", []string{})

	v.SetDefault("store.runs_dir", "~/.fixfactory/runs")
	v.SetDefault("store.db_path", "~/.fixfactory/history.db")
	v.SetDefault("store.history", true)
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("watch.flush_after", "2s")
	v.SetDefault("watch.from_start", false)
	v.SetDefault("watch.poll", false)
}

// searchPaths lists the config files tried when no explicit path is given.
func searchPaths() []string {
	paths := []string{"fixfactory.yaml"}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, filepath.Join(home, ".fixfactory", "config.yaml"))
	}
	return paths
}

// Load reads configuration from path, or from the first file found in the
// search path when path is empty. A missing search-path file is not an error;
// a missing explicit file is.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so flags bound to v
// take part in resolution.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	if cfg.Resolver.GitHub.Token == "" {
		cfg.Resolver.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if err := expandPaths(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path-valued field.
func expandPaths(cfg *Config) error {
	for _, p := range []*string{
		&cfg.Logger.LogFile,
		&cfg.Resolver.Root,
		&cfg.Resolver.CacheDir,
		&cfg.Catalog.Path,
		&cfg.GitHub.RepoDir,
		&cfg.Store.RunsDir,
		&cfg.Store.DBPath,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}
