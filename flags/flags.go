package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "VITEST_BRIDGE"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to the TOML service config file",
	}
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "",
		EnvVars: prefixEnvVars("MANIFEST"),
		Usage:   "Path to the test manifest file (eg. 'tests.yaml')",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVars("SUITE"),
		Usage:   "Restrict a run to a single suite from the manifest",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_DIR"),
		Usage:   "Directory to store per-run result logs (disabled when empty)",
	}
	HistoryDSN = &cli.StringFlag{
		Name:    "history-dsn",
		Value:   "",
		EnvVars: prefixEnvVars("HISTORY_DSN"),
		Usage:   "Postgres DSN for run history (disabled when empty)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error, crit",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "logfmt",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format: logfmt, json, terminal",
	}
)

var Flags = []cli.Flag{
	ConfigFile,
	Manifest,
	Suite,
	RunInterval,
	LogDir,
	HistoryDSN,
	LogLevel,
	LogFormat,
}

// CheckRequired verifies that enough configuration is present to locate the
// test manifest.
func CheckRequired(ctx *cli.Context) error {
	if ctx.String(ConfigFile.Name) == "" && ctx.String(Manifest.Name) == "" {
		return fmt.Errorf("one of --%s or --%s is required", ConfigFile.Name, Manifest.Name)
	}
	return nil
}
