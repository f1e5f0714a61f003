// Package logging persists per-run results to disk: a combined transition
// log, one file per reported test, and a run summary.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run directories.
	RunDirectoryPrefix = "testrun-"

	AllLogsFilename = "all.log"
	SummaryFilename = "summary.txt"
)

// FileReporter writes test transitions for one run under
// <baseDir>/testrun-<runID>/. The combined log is written asynchronously so
// slow disks never stall the pipeline.
type FileReporter struct {
	log    log.Logger
	runDir string

	mu     sync.Mutex
	all    *AsyncFile
	closed bool
}

func NewFileReporter(logger log.Logger, baseDir, runID string) (*FileReporter, error) {
	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}
	all, err := NewAsyncFile(filepath.Join(runDir, AllLogsFilename))
	if err != nil {
		return nil, err
	}
	return &FileReporter{
		log:    logger,
		runDir: runDir,
		all:    all,
	}, nil
}

// Dir returns the directory this run's files are written to.
func (f *FileReporter) Dir() string {
	return f.runDir
}

func (f *FileReporter) MarkRunning(t types.Test) {
	f.appendLine(fmt.Sprintf("RUNNING %s", t.Label))
}

func (f *FileReporter) MarkPassed(t types.Test, duration time.Duration) {
	f.appendLine(fmt.Sprintf("PASS    %s (%s)", t.Label, duration))
	f.writeTestFile(t, types.VerdictPass, "", duration)
}

func (f *FileReporter) MarkFailed(t types.Test, message string, duration time.Duration) {
	f.appendLine(fmt.Sprintf("FAIL    %s (%s)", t.Label, duration))
	f.writeTestFile(t, types.VerdictFail, message, duration)
}

func (f *FileReporter) MarkSkipped(t types.Test, message string) {
	f.appendLine(fmt.Sprintf("SKIP    %s", t.Label))
	f.writeTestFile(t, types.VerdictSkip, message, 0)
}

// Complete writes the run summary and closes the combined log. The reporter
// must not be used afterwards.
func (f *FileReporter) Complete(summary types.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("file reporter already completed")
	}
	f.closed = true
	f.all.Stop()

	contents := fmt.Sprintf("%s\nstatus: %s\nmalformed records: %d\ninvalid transitions: %d\n",
		summary.String(), summary.Status(), summary.Malformed, summary.InvalidTransitions)
	path := filepath.Join(f.runDir, SummaryFilename)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func (f *FileReporter) appendLine(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if err := f.all.Write([]byte(line + "\n")); err != nil {
		f.log.Error("failed to append to run log", "err", err)
	}
}

func (f *FileReporter) writeTestFile(t types.Test, verdict types.Verdict, message string, duration time.Duration) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "test: %s\nverdict: %s\n", t.Label, verdict)
	if duration > 0 {
		fmt.Fprintf(&sb, "duration: %s\n", duration)
	}
	if message != "" {
		fmt.Fprintf(&sb, "\n%s\n", message)
	}

	path := filepath.Join(f.runDir, sanitizeFilename(t.Label)+".log")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		f.log.Error("failed to write test result file", "test", t.Label, "err", err)
	}
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
