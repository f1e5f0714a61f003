// Package proc runs the external test process and streams its stdout, in
// arrival order, into the correlation pipeline. Stderr is captured into a
// bounded tail for diagnostics; it never feeds the pipeline.
package proc

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultStderrTailBytes bounds the retained stderr tail.
const DefaultStderrTailBytes = 16 * 1024

// Command describes the external runner invocation.
type Command struct {
	Command         string
	Args            []string
	Dir             string
	Env             []string
	Timeout         time.Duration
	StderrTailBytes int
}

// Result is the observation the aggregator needs: the exit code, the wall
// duration and whatever the process last wrote to stderr.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StderrTail string
}

// Run starts the command and copies stdout into sink until the process
// exits. Context cancellation or the configured timeout kills the process;
// the non-zero exit this produces is still reported through Result. An error
// is returned only when the process could not be run at all.
func Run(ctx context.Context, logger log.Logger, command Command, sink io.Writer) (Result, error) {
	if command.Command == "" {
		return Result{}, errors.New("runner command is required")
	}
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command.Command, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to open stderr pipe")
	}

	logger.Debug("starting runner", "command", command.Command, "args", command.Args, "dir", command.Dir)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, errors.Wrapf(err, "failed to start runner %s", command.Command)
	}

	tail := newTailBuffer(command.StderrTailBytes)
	var g errgroup.Group
	g.Go(func() error {
		// single copier keeps stdout chunks in arrival order
		_, err := io.Copy(sink, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(tail, stderr)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Debug("runner stream closed early", "err", err)
	}

	waitErr := cmd.Wait()
	result := Result{
		Duration:   time.Since(start),
		StderrTail: tail.String(),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			// ran and failed; the exit code drives finalization
			result.ExitCode = exitErr.ExitCode()
			logger.Debug("runner exited", "exit_code", result.ExitCode, "duration", result.Duration)
			return result, nil
		}
		return result, errors.Wrap(waitErr, "runner did not run")
	}

	logger.Debug("runner exited", "exit_code", 0, "duration", result.Duration)
	return result, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = DefaultStderrTailBytes
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
