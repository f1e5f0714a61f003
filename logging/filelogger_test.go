package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

func TestFileReporterWritesRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	fr, err := NewFileReporter(log.New(), baseDir, "run-1")
	require.NoError(t, err)

	passed := types.NewTest("auth", "login works")
	failed := types.NewTest("auth", "logout works")

	fr.MarkRunning(passed)
	fr.MarkPassed(passed, 12*time.Millisecond)
	fr.MarkFailed(failed, "expected 200, got 500", 3*time.Millisecond)

	summary := types.Summary{RunID: "run-1", Requested: 2, Passed: 1, Failed: 1}
	require.NoError(t, fr.Complete(summary))

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+"run-1")
	assert.Equal(t, runDir, fr.Dir())

	all, err := os.ReadFile(filepath.Join(runDir, AllLogsFilename))
	require.NoError(t, err)
	assert.Contains(t, string(all), "RUNNING auth > login works")
	assert.Contains(t, string(all), "PASS    auth > login works")
	assert.Contains(t, string(all), "FAIL    auth > logout works")

	passFile, err := os.ReadFile(filepath.Join(runDir, "auth___login_works.log"))
	require.NoError(t, err)
	assert.Contains(t, string(passFile), "verdict: pass")
	assert.Contains(t, string(passFile), "duration: 12ms")

	failFile, err := os.ReadFile(filepath.Join(runDir, "auth___logout_works.log"))
	require.NoError(t, err)
	assert.Contains(t, string(failFile), "verdict: fail")
	assert.Contains(t, string(failFile), "expected 200, got 500")

	summaryFile, err := os.ReadFile(filepath.Join(runDir, SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summaryFile), "run run-1")
}

func TestFileReporterDoubleCompleteRejected(t *testing.T) {
	fr, err := NewFileReporter(log.New(), t.TempDir(), "run-2")
	require.NoError(t, err)

	require.NoError(t, fr.Complete(types.Summary{RunID: "run-2"}))
	assert.Error(t, fr.Complete(types.Summary{RunID: "run-2"}))
}

func TestFileReporterIgnoresWritesAfterComplete(t *testing.T) {
	fr, err := NewFileReporter(log.New(), t.TempDir(), "run-3")
	require.NoError(t, err)
	require.NoError(t, fr.Complete(types.Summary{RunID: "run-3"}))

	// must not panic on the closed async writer
	fr.MarkSkipped(types.NewTest("s", "late"), "late transition")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "auth___login_works", sanitizeFilename("auth > login works"))
	assert.Equal(t, "weird__chars_1.2", sanitizeFilename("weird//chars 1.2"))
}
