package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/vitest-bridge/flags"
)

type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	*t = TOMLDuration(d)
	return nil
}

// RunnerConfig describes how to invoke the external test runner. The bridge
// passes the argv through verbatim; it does not assemble runner arguments.
type RunnerConfig struct {
	Command         string       `toml:"command"`
	Args            []string     `toml:"args"`
	WorkDir         string       `toml:"workdir"`
	Env             []string     `toml:"env"`
	Timeout         TOMLDuration `toml:"timeout"`
	StderrTailBytes int          `toml:"stderr_tail_bytes"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    string `toml:"port"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Debug   bool   `toml:"debug"`
	Host    string `toml:"host"`
	Port    string `toml:"port"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn"`
}

type PipelineConfig struct {
	MaxRecordBytes int `toml:"max_record_bytes"`
	DetectWindow   int `toml:"detect_window"`
}

// FileConfig is the TOML service configuration. CLI flags override it.
type FileConfig struct {
	Manifest    string       `toml:"manifest"`
	Suite       string       `toml:"suite"`
	RunInterval TOMLDuration `toml:"run_interval"`
	LogDir      string       `toml:"log_dir"`
	LogLevel    string       `toml:"log_level"`
	LogFormat   string       `toml:"log_format"`

	Runner   RunnerConfig   `toml:"runner"`
	Healthz  HTTPConfig     `toml:"healthz"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Results  HTTPConfig     `toml:"results"`
	History  HistoryConfig  `toml:"history"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

func DefaultFileConfig() FileConfig {
	return FileConfig{
		LogLevel:  "info",
		LogFormat: "logfmt",
		Healthz:   HTTPConfig{Enabled: true, Host: "0.0.0.0", Port: "8080"},
		Metrics:   MetricsConfig{Enabled: true, Debug: true, Host: "0.0.0.0", Port: "7300"},
		Results:   HTTPConfig{Enabled: true, Host: "0.0.0.0", Port: "7400"},
	}
}

// LoadFileConfig reads the TOML config file over the defaults.
func LoadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cfg, nil
}

// Config holds the application configuration
type Config struct {
	Manifest    string
	Suite       string
	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run
	LogDir      string        // Directory to store per-run result logs
	LogLevel    string
	LogFormat   string

	Runner   RunnerConfig
	Healthz  HTTPConfig
	Metrics  MetricsConfig
	Results  HTTPConfig
	History  HistoryConfig
	Pipeline PipelineConfig

	Log log.Logger
}

// NewConfig creates a new Config from cli context, merging the optional
// config file underneath: flags beat file, file beats defaults.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	file := DefaultFileConfig()
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		var err error
		file, err = LoadFileConfig(path)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Manifest:    file.Manifest,
		Suite:       file.Suite,
		RunInterval: time.Duration(file.RunInterval),
		LogDir:      file.LogDir,
		LogLevel:    file.LogLevel,
		LogFormat:   file.LogFormat,
		Runner:      file.Runner,
		Healthz:     file.Healthz,
		Metrics:     file.Metrics,
		Results:     file.Results,
		History:     file.History,
		Pipeline:    file.Pipeline,
		Log:         logger,
	}

	if ctx.IsSet(flags.Manifest.Name) {
		cfg.Manifest = ctx.String(flags.Manifest.Name)
	}
	if ctx.IsSet(flags.Suite.Name) {
		cfg.Suite = ctx.String(flags.Suite.Name)
	}
	if ctx.IsSet(flags.RunInterval.Name) {
		cfg.RunInterval = ctx.Duration(flags.RunInterval.Name)
	}
	if ctx.IsSet(flags.LogDir.Name) {
		cfg.LogDir = ctx.String(flags.LogDir.Name)
	}
	if ctx.IsSet(flags.HistoryDSN.Name) {
		cfg.History.DSN = ctx.String(flags.HistoryDSN.Name)
	}
	if ctx.IsSet(flags.LogLevel.Name) {
		cfg.LogLevel = ctx.String(flags.LogLevel.Name)
	}
	if ctx.IsSet(flags.LogFormat.Name) {
		cfg.LogFormat = ctx.String(flags.LogFormat.Name)
	}
	cfg.RunOnce = cfg.RunInterval == 0

	if cfg.Manifest == "" {
		return nil, errors.New("test manifest is required")
	}
	if cfg.Runner.Command == "" {
		return nil, errors.New("runner command is required (set [runner] command in the config file)")
	}

	var err error
	cfg.Manifest, err = filepath.Abs(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", cfg.Manifest, err)
	}
	if _, err := os.Stat(cfg.Manifest); err != nil {
		return nil, fmt.Errorf("manifest not readable: %w", err)
	}
	if cfg.LogDir != "" {
		cfg.LogDir, err = filepath.Abs(cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", cfg.LogDir, err)
		}
	}

	return cfg, nil
}
