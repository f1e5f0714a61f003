package proc

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	var sink bytes.Buffer
	result, err := Run(context.Background(), log.New(), Command{
		Command: "sh",
		Args:    []string{"-c", "printf 'line one\\nline two\\n'"},
	}, &sink)

	require.NoError(t, err)
	assert.Zero(t, result.ExitCode)
	assert.Equal(t, "line one\nline two\n", sink.String())
}

func TestRunReportsExitCode(t *testing.T) {
	var sink bytes.Buffer
	result, err := Run(context.Background(), log.New(), Command{
		Command: "sh",
		Args:    []string{"-c", "echo partial; exit 3"},
	}, &sink)

	require.NoError(t, err, "a failing runner is not a runtime error")
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "partial\n", sink.String())
}

func TestRunStderrTail(t *testing.T) {
	var sink bytes.Buffer
	result, err := Run(context.Background(), log.New(), Command{
		Command: "sh",
		Args:    []string{"-c", "echo oops >&2; exit 1"},
	}, &sink)

	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "oops\n", result.StderrTail)
	assert.Empty(t, sink.String(), "stderr must not reach the pipeline sink")
}

func TestRunStderrTailBounded(t *testing.T) {
	var sink bytes.Buffer
	result, err := Run(context.Background(), log.New(), Command{
		Command:         "sh",
		Args:            []string{"-c", "for i in $(seq 1 100); do echo 0123456789 >&2; done"},
		StderrTailBytes: 64,
	}, &sink)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.StderrTail), 64)
	assert.True(t, strings.HasSuffix(result.StderrTail, "0123456789\n"))
}

func TestRunMissingBinary(t *testing.T) {
	var sink bytes.Buffer
	_, err := Run(context.Background(), log.New(), Command{
		Command: "definitely-not-a-real-binary-4c2a",
	}, &sink)
	assert.Error(t, err)
}

func TestRunEmptyCommand(t *testing.T) {
	var sink bytes.Buffer
	_, err := Run(context.Background(), log.New(), Command{}, &sink)
	assert.Error(t, err)
}

func TestRunContextCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	var sink bytes.Buffer
	start := time.Now()
	result, err := Run(ctx, log.New(), Command{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
	}, &sink)

	require.NoError(t, err)
	assert.NotZero(t, result.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunTimeout(t *testing.T) {
	var sink bytes.Buffer
	result, err := Run(context.Background(), log.New(), Command{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 100 * time.Millisecond,
	}, &sink)

	require.NoError(t, err)
	assert.NotZero(t, result.ExitCode)
}
