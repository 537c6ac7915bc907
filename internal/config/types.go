package config

import "time"

// Config is the full fixfactory configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Parser       ParserConfig       `mapstructure:"parser" yaml:"parser"`
	Resolver     ResolverConfig     `mapstructure:"resolver" yaml:"resolver"`
	Synth        SynthConfig        `mapstructure:"synth" yaml:"synth"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Catalog      CatalogConfig      `mapstructure:"catalog" yaml:"catalog"`
	GitHub       GitHubConfig       `mapstructure:"github" yaml:"github"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Watch        WatchConfig        `mapstructure:"watch" yaml:"watch"`

	// Source is the file the config was read from, empty when none was found.
	Source string `mapstructure:"-" yaml:"-"`
}

// LoggerConfig controls console and file logging.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
}

type ParserConfig struct {
	MaxTraceLines int `mapstructure:"max_trace_lines" yaml:"max_trace_lines"`
}

// ResolverConfig selects and tunes the repository-content provider.
type ResolverConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // none, fs, git, github
	Root     string        `mapstructure:"root" yaml:"root"`
	Ref      string        `mapstructure:"ref" yaml:"ref"`
	Window   int           `mapstructure:"window" yaml:"window"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	GitHub   GitHubAPI     `mapstructure:"github" yaml:"github"`
}

// GitHubAPI configures the GitHub contents provider.
type GitHubAPI struct {
	Owner             string  `mapstructure:"owner" yaml:"owner"`
	Repo              string  `mapstructure:"repo" yaml:"repo"`
	Token             string  `mapstructure:"token" yaml:"-"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

type SynthConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type OrchestratorConfig struct {
	Workers        int `mapstructure:"workers" yaml:"workers"`
	ProgressBuffer int `mapstructure:"progress_buffer" yaml:"progress_buffer"`
}

// CatalogConfig points at an optional catalog file replacing the built-in one.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// GitHubConfig configures the PR/issue submitter.
type GitHubConfig struct {
	Mode         string   `mapstructure:"mode" yaml:"mode"` // pr or issue
	Base         string   `mapstructure:"base" yaml:"base"`
	RepoDir      string   `mapstructure:"repo_dir" yaml:"repo_dir"`
	ReportDir    string   `mapstructure:"report_dir" yaml:"report_dir"`
	BranchPrefix string   `mapstructure:"branch_prefix" yaml:"branch_prefix"`
	Labels       []string `mapstructure:"labels" yaml:"labels"`
}

// StoreConfig configures where runs are kept.
type StoreConfig struct {
	RunsDir     string `mapstructure:"runs_dir" yaml:"runs_dir"`
	DBPath      string `mapstructure:"db_path" yaml:"db_path"`
	History     bool   `mapstructure:"history" yaml:"history"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"-"`
}

type WatchConfig struct {
	FlushAfter time.Duration `mapstructure:"flush_after" yaml:"flush_after"`
	FromStart  bool          `mapstructure:"from_start" yaml:"from_start"`
	Poll       bool          `mapstructure:"poll" yaml:"poll"`
}
