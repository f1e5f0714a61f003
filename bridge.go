// Package bridge correlates the output of an external test runner with the
// set of requested tests and reports live per-test results. It owns the run
// lifecycle: spawning the runner, feeding its output through the correlation
// pipeline, finalizing every requested test and publishing the summary.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/vitest-bridge/exitcodes"
	"github.com/ethereum-optimism/infra/vitest-bridge/history"
	"github.com/ethereum-optimism/infra/vitest-bridge/logging"
	"github.com/ethereum-optimism/infra/vitest-bridge/metrics"
	"github.com/ethereum-optimism/infra/vitest-bridge/proc"
	"github.com/ethereum-optimism/infra/vitest-bridge/run"
	"github.com/ethereum-optimism/infra/vitest-bridge/service"
	"github.com/ethereum-optimism/infra/vitest-bridge/tree"
	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const tracerName = "vitest-bridge"

// Bridge is the service: it runs the external test runner, once or
// periodically, and drives the reporting sinks from its output.
type Bridge struct {
	ctx     context.Context
	config  *Config
	version string
	tree    *tree.Tree
	store   *history.Store
	results *service.ResultsServer

	lastSummary atomic.Pointer[types.Summary]

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	session   *run.Session
	cancelRun context.CancelFunc

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Bridge, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating bridge with config",
		"manifest", config.Manifest,
		"suite", config.Suite,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"runnerCommand", config.Runner.Command)

	testTree, err := tree.Load(config.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load test manifest: %w", err)
	}
	if config.Suite != "" {
		if _, err := testTree.TestsBySuite(config.Suite); err != nil {
			return nil, fmt.Errorf("invalid suite filter: %w", err)
		}
	}

	var store *history.Store
	if config.History.DSN != "" {
		store, err = history.New(ctx, config.Log, config.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}
	config.Log.Info("bridge.New: loaded manifest", "tests", testTree.Len(), "suites", len(testTree.Suites()))

	return &Bridge{
		ctx:              ctx,
		config:           config,
		version:          version,
		tree:             testTree,
		store:            store,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// AttachResults wires the results server in as a summary publisher and its
// stream hub as a live reporter. Optional; the bridge works without it.
func (b *Bridge) AttachResults(rs *service.ResultsServer) {
	b.results = rs
}

// Start runs the tests immediately and then, unless in run-once mode,
// periodically at the configured interval.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	b.done = make(chan struct{})
	b.running.Store(true)

	if b.config.RunOnce {
		b.config.Log.Info("Starting vitest-bridge in run-once mode")
	} else {
		b.config.Log.Info("Starting vitest-bridge in continuous mode", "interval", b.config.RunInterval)
	}

	err := b.runTests()
	if err != nil {
		b.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	if b.config.RunOnce {
		b.config.Log.Info("Run completed, exiting (run-once mode)")

		if summary := b.lastSummary.Load(); summary != nil && summary.Status() == types.VerdictFail {
			b.config.Log.Warn("Run-once test run completed with failures, returning exit code", "exit_code", exitcodes.RunFailure)
			return NewRunFailureError(summary.String())
		}

		go func() {
			b.shutdownCallback(nil)
		}()
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.config.Log.Debug("Starting periodic test runner goroutine", "interval", b.config.RunInterval)

		for {
			select {
			case <-time.After(b.config.RunInterval):
				if !b.running.Load() {
					b.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}

				b.config.Log.Info("Running periodic tests")
				if err := b.runTests(); err != nil {
					b.config.Log.Error("Error running periodic tests", "error", err)
				}

			case <-b.done:
				b.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				b.config.Log.Debug("Context canceled, stopping periodic test runner")
				b.running.Store(false)
				return
			}
		}
	}()
	b.config.Log.Debug("vitest-bridge started successfully")
	return nil
}

// Stop stops the bridge. An in-flight run is cancelled: its process is
// killed and every unfinished test is skipped.
func (b *Bridge) Stop(ctx context.Context) error {
	b.config.Log.Info("Stopping vitest-bridge")

	if !b.running.Load() {
		b.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	b.running.Store(false)

	b.mu.Lock()
	if b.cancelRun != nil {
		b.cancelRun()
	}
	if b.session != nil {
		b.session.Cancel()
	}
	b.mu.Unlock()

	close(b.done)

	if b.store != nil {
		b.store.Close()
	}

	b.config.Log.Info("vitest-bridge stopped successfully")
	return nil
}

// Stopped returns true if the bridge service is stopped.
func (b *Bridge) Stopped() bool {
	return !b.running.Load()
}

// LastSummary returns the most recent run summary, nil before the first run
// completes.
func (b *Bridge) LastSummary() *types.Summary {
	return b.lastSummary.Load()
}

// requestedTests resolves the set of tests to run, honoring the suite
// filter.
func (b *Bridge) requestedTests() ([]types.Test, error) {
	if b.config.Suite == "" {
		return b.tree.Tests(), nil
	}
	return b.tree.TestsBySuite(b.config.Suite)
}

// runTests executes one run end to end and processes the results.
func (b *Bridge) runTests() error {
	summary, outcomes, err := b.executeRun(b.ctx)
	if err != nil {
		return err
	}
	b.lastSummary.Store(&summary)

	writeResultsTable(os.Stdout, summary, outcomes)
	fmt.Println(summary.String())

	metrics.RecordRun(summary)
	if b.results != nil {
		b.results.PublishSummary(summary)
	}
	if b.store != nil {
		// best effort: a storage failure never fails the run
		if err := b.store.RecordRun(b.ctx, summary, outcomes); err != nil {
			b.config.Log.Error("Failed to record run history", "error", err)
			metrics.RecordErrorDetails("history record failed", err)
		}
	}

	b.config.Log.Info("Test run completed", "run_id", summary.RunID, "status", summary.Status())
	return nil
}

// executeRun spawns the runner and drives the correlation pipeline for one
// run.
func (b *Bridge) executeRun(ctx context.Context) (types.Summary, []types.ResolvedOutcome, error) {
	requested, err := b.requestedTests()
	if err != nil {
		return types.Summary{}, nil, err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracer := otel.Tracer(tracerName)
	runCtx, span := tracer.Start(runCtx, "test-run", oteltrace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.requested", len(requested)),
	))
	defer span.End()

	reporters := []run.Reporter{
		run.NewLogReporter(b.config.Log),
		metrics.Reporter{},
	}
	var fileReporter *logging.FileReporter
	if b.config.LogDir != "" {
		fileReporter, err = logging.NewFileReporter(b.config.Log, b.config.LogDir, runID)
		if err != nil {
			return types.Summary{}, nil, err
		}
		reporters = append(reporters, fileReporter)
	}
	if b.results != nil {
		reporters = append(reporters, b.results.Hub())
	}

	session := run.NewSession(run.SessionConfig{
		Log:            b.config.Log,
		Tests:          requested,
		Reporter:       run.NewMultiReporter(reporters...),
		RunID:          runID,
		MaxRecordBytes: b.config.Pipeline.MaxRecordBytes,
		DetectWindow:   b.config.Pipeline.DetectWindow,
	})

	b.mu.Lock()
	b.session = session
	b.cancelRun = cancel
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.session = nil
		b.cancelRun = nil
		b.mu.Unlock()
	}()

	result, err := proc.Run(runCtx, b.config.Log, proc.Command{
		Command:         b.config.Runner.Command,
		Args:            b.config.Runner.Args,
		Dir:             b.config.Runner.WorkDir,
		Env:             b.config.Runner.Env,
		Timeout:         time.Duration(b.config.Runner.Timeout),
		StderrTailBytes: b.config.Runner.StderrTailBytes,
	}, session)
	if err != nil {
		// could not run at all; still finalize so the sinks see a
		// terminal state for every requested test
		session.Cancel()
		summary := session.Finalize(-1)
		if fileReporter != nil {
			_ = fileReporter.Complete(summary)
		}
		span.RecordError(err)
		return types.Summary{}, nil, fmt.Errorf("failed to execute runner: %w", err)
	}

	if runCtx.Err() != nil {
		session.Cancel()
	}
	summary := session.Finalize(result.ExitCode)
	outcomes := session.Outcomes()

	if result.ExitCode != 0 && result.StderrTail != "" {
		b.config.Log.Warn("Runner exited non-zero", "exit_code", result.ExitCode, "stderr_tail", result.StderrTail)
	}
	if fileReporter != nil {
		if err := fileReporter.Complete(summary); err != nil {
			b.config.Log.Error("Failed to write run files", "error", err)
		} else {
			b.config.Log.Info("Run artifacts written", "dir", fileReporter.Dir())
		}
	}

	span.SetAttributes(
		attribute.String("run.status", string(summary.Status())),
		attribute.Int("run.passed", summary.Passed),
		attribute.Int("run.failed", summary.Failed),
		attribute.Int("run.skipped", summary.Skipped),
		attribute.Int("run.unresolved", summary.Unresolved),
	)
	return summary, outcomes, nil
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (b *Bridge) WaitForShutdown(ctx context.Context) error {
	b.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		b.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
