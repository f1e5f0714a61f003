package run

import (
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// Reporter receives per-test state transitions. The session guarantees at
// most one terminal call per test per run.
type Reporter interface {
	MarkRunning(t types.Test)
	MarkPassed(t types.Test, duration time.Duration)
	MarkFailed(t types.Test, message string, duration time.Duration)
	MarkSkipped(t types.Test, message string)
}

// MultiReporter fans transitions out to several sinks in order.
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) MarkRunning(t types.Test) {
	for _, r := range m.reporters {
		r.MarkRunning(t)
	}
}

func (m *MultiReporter) MarkPassed(t types.Test, duration time.Duration) {
	for _, r := range m.reporters {
		r.MarkPassed(t, duration)
	}
}

func (m *MultiReporter) MarkFailed(t types.Test, message string, duration time.Duration) {
	for _, r := range m.reporters {
		r.MarkFailed(t, message, duration)
	}
}

func (m *MultiReporter) MarkSkipped(t types.Test, message string) {
	for _, r := range m.reporters {
		r.MarkSkipped(t, message)
	}
}

// LogReporter writes transitions to the structured log.
type LogReporter struct {
	log log.Logger
}

func NewLogReporter(logger log.Logger) *LogReporter {
	return &LogReporter{log: logger}
}

func (l *LogReporter) MarkRunning(t types.Test) {
	l.log.Debug("test running", "test", t.Label)
}

func (l *LogReporter) MarkPassed(t types.Test, duration time.Duration) {
	l.log.Info("test passed", "test", t.Label, "duration", duration)
}

func (l *LogReporter) MarkFailed(t types.Test, message string, duration time.Duration) {
	l.log.Warn("test failed", "test", t.Label, "duration", duration, "message", message)
}

func (l *LogReporter) MarkSkipped(t types.Test, message string) {
	l.log.Info("test skipped", "test", t.Label, "message", message)
}
