package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	bridge "github.com/ethereum-optimism/infra/vitest-bridge"
	"github.com/ethereum-optimism/infra/vitest-bridge/flags"
	"github.com/ethereum-optimism/infra/vitest-bridge/metrics"
	"github.com/ethereum-optimism/infra/vitest-bridge/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "vitest-bridge"
	app.Usage = "Test Runner Bridge Service"
	app.Description = "vitest-bridge runs an external test runner and correlates its output into per-test results"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if bridge.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if bridge.IsRunFailureError(err) {
				// For test failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger, err := setupLogger(ctx.String(flags.LogLevel.Name), ctx.String(flags.LogFormat.Name))
	if err != nil {
		return bridge.NewRuntimeError(err)
	}
	log.SetDefault(logger)

	cfg, err := bridge.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return bridge.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config loaded", "manifest", cfg.Manifest, "runOnce", cfg.RunOnce)

	metrics.Debug = cfg.Metrics.Debug

	svc := service.New(service.Config{
		Healthz: service.HTTPConfig(cfg.Healthz),
		Metrics: service.HTTPConfig{Enabled: cfg.Metrics.Enabled, Host: cfg.Metrics.Host, Port: cfg.Metrics.Port},
		Results: service.HTTPConfig(cfg.Results),
	})
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	appCtx, finish := context.WithCancelCause(ctx.Context)
	defer finish(nil)

	b, err := bridge.New(appCtx, cfg, Version, finish)
	if err != nil {
		return bridge.NewRuntimeError(fmt.Errorf("failed to create bridge: %w", err))
	}
	b.AttachResults(svc.Results)

	if err := b.Start(appCtx); err != nil {
		return err
	}

	// Block until a signal arrives or run-once mode signals completion.
	<-appCtx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		logger.Error("Error stopping bridge", "error", err)
	}
	if err := b.WaitForShutdown(stopCtx); err != nil {
		logger.Error("Error waiting for shutdown", "error", err)
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func setupLogger(level, format string) (log.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	case "terminal":
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)
	case "logfmt", "":
		handler = log.LogfmtHandlerWithLevel(os.Stderr, lvl)
	default:
		return nil, fmt.Errorf("unrecognized log format: %q", format)
	}
	return log.NewLogger(handler), nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("unrecognized log level: %q", level)
	}
}
