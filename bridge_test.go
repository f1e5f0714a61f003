package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const twoTestManifest = `suites:
  - name: auth
    tests:
      - name: login works
      - name: logout works
`

func newTestConfig(t *testing.T, script string) *Config {
	t.Helper()

	manifest := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(twoTestManifest), 0644))

	return &Config{
		Manifest: manifest,
		RunOnce:  true,
		Runner: RunnerConfig{
			Command: "sh",
			Args:    []string{"-c", script},
		},
		Log: log.New(),
	}
}

func startRunOnce(t *testing.T, cfg *Config) (*Bridge, error) {
	t.Helper()

	shutdownCh := make(chan error, 1)
	b, err := New(context.Background(), cfg, "test", func(err error) {
		shutdownCh <- err
	})
	require.NoError(t, err)

	startErr := b.Start(context.Background())
	if startErr == nil {
		select {
		case <-shutdownCh:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for run-once shutdown callback")
		}
	}
	require.NoError(t, b.Stop(context.Background()))
	return b, startErr
}

func TestBridge_RunOnce_AllPass(t *testing.T) {
	cfg := newTestConfig(t, `printf '✓ auth > login works (3ms)\n✓ auth > logout works (1ms)\n'`)

	b, err := startRunOnce(t, cfg)
	require.NoError(t, err)

	summary := b.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, types.VerdictPass, summary.Status())
	assert.Equal(t, 2, summary.Requested)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 0, summary.ExitCode)
	assert.Equal(t, types.DialectText, summary.Dialect)
}

func TestBridge_RunOnce_FailurePropagates(t *testing.T) {
	cfg := newTestConfig(t, `printf '✓ auth > login works (3ms)\n'; exit 1`)

	b, err := startRunOnce(t, cfg)
	require.Error(t, err)
	assert.True(t, IsRunFailureError(err))

	summary := b.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, types.VerdictFail, summary.Status())
	assert.Equal(t, 1, summary.Passed)
	// the unreported test inherits the runner's failure exit code
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ExitCode)
}

func TestBridge_RunOnce_UnrecognizedOutput(t *testing.T) {
	cfg := newTestConfig(t, `printf 'compiling...\nall done\n'`)

	b, err := startRunOnce(t, cfg)
	require.NoError(t, err)

	summary := b.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, types.DialectUnknown, summary.Dialect)
	assert.Equal(t, 2, summary.Skipped)
}

func TestBridge_RunOnce_JSONRunner(t *testing.T) {
	cfg := newTestConfig(t, `printf '{"test":"auth > login works","verdict":"pass","durationMs":12}\n{"test":"auth > logout works","verdict":"fail","message":"boom"}\n'; exit 1`)

	b, err := startRunOnce(t, cfg)
	require.Error(t, err)
	assert.True(t, IsRunFailureError(err))

	summary := b.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, types.DialectJSON, summary.Dialect)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
}

func TestBridge_New_InvalidSuiteFilter(t *testing.T) {
	cfg := newTestConfig(t, "true")
	cfg.Suite = "nonexistent"

	_, err := New(context.Background(), cfg, "test", func(error) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suite")
}

func TestBridge_New_MissingRunnerBinary(t *testing.T) {
	cfg := newTestConfig(t, "true")
	cfg.Runner.Command = "/no/such/binary"

	b, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)

	err = b.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	require.NoError(t, b.Stop(context.Background()))
}

func TestBridge_StopIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t, `printf '✓ auth > login works (3ms)\n✓ auth > logout works (1ms)\n'`)

	b, err := startRunOnce(t, cfg)
	require.NoError(t, err)
	assert.True(t, b.Stopped())
	require.NoError(t, b.Stop(context.Background()))
}

func TestBridge_LogDirArtifacts(t *testing.T) {
	cfg := newTestConfig(t, `printf '✓ auth > login works (3ms)\n✓ auth > logout works (1ms)\n'`)
	cfg.LogDir = t.TempDir()

	b, err := startRunOnce(t, cfg)
	require.NoError(t, err)

	summary := b.LastSummary()
	require.NotNil(t, summary)

	runDir := filepath.Join(cfg.LogDir, "testrun-"+summary.RunID)
	_, statErr := os.Stat(filepath.Join(runDir, "summary.txt"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(runDir, "all.log"))
	assert.NoError(t, statErr)
}
