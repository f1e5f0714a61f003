// Package run drives one test run: it feeds runner output through dialect
// detection, parsing and identity resolution, applies validated state
// transitions to the reporting sinks, and finalizes every requested test
// into exactly one terminal state.
package run

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/vitest-bridge/ingest"
	"github.com/ethereum-optimism/infra/vitest-bridge/parse"
	"github.com/ethereum-optimism/infra/vitest-bridge/resolve"
	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// Synthetic messages attached to tests the runner never reported on.
const (
	MsgNotReported     = "no result reported"
	MsgReportedSuccess = "not reported; run reported success"
	MsgCancelled       = "cancelled"
)

type testState int

const (
	statePending testState = iota
	stateRunning
	statePassed
	stateFailed
	stateSkipped
)

func (s testState) terminal() bool {
	return s >= statePassed
}

func terminalState(v types.Verdict) testState {
	switch v {
	case types.VerdictPass:
		return statePassed
	case types.VerdictFail:
		return stateFailed
	default:
		return stateSkipped
	}
}

// SessionConfig configures one run.
type SessionConfig struct {
	Log      log.Logger
	Tests    []types.Test
	Reporter Reporter
	// RunID is generated when empty.
	RunID string
	// MaxRecordBytes bounds the ingest buffer; zero means the default.
	MaxRecordBytes int
	// DetectWindow is how many leading records are inspected for dialect
	// detection; zero means the default.
	DetectWindow int
}

// Session holds all mutable state of one run. Sessions never share parser,
// resolver or reported-set state; concurrent runs each get their own.
//
// Session implements io.Writer so the process runner can stream stdout
// straight into the pipeline. Writes after cancellation or finalization are
// discarded.
type Session struct {
	mu sync.Mutex

	id       string
	log      log.Logger
	reporter Reporter

	tests map[types.TestID]types.Test
	order []types.TestID

	scanner  *ingest.Scanner
	parser   parse.RecordParser
	resolver *resolve.Resolver
	dialect  types.Dialect

	detectLeft int
	window     []string

	states   map[types.TestID]testState
	outcomes []types.ResolvedOutcome

	unresolved int
	malformed  int
	invalid    int

	startedAt  time.Time
	finishedAt time.Time
	done       bool
	cancelled  bool

	dupLogLimiter *rate.Limiter
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.DetectWindow <= 0 {
		cfg.DetectWindow = parse.DefaultDetectWindow
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NewMultiReporter()
	}

	s := &Session{
		id:            cfg.RunID,
		log:           cfg.Log.New("run_id", cfg.RunID),
		reporter:      cfg.Reporter,
		tests:         make(map[types.TestID]types.Test, len(cfg.Tests)),
		scanner:       ingest.NewScanner(cfg.MaxRecordBytes),
		resolver:      resolve.New(cfg.Tests),
		dialect:       types.DialectUnknown,
		detectLeft:    cfg.DetectWindow,
		states:        make(map[types.TestID]testState, len(cfg.Tests)),
		startedAt:     time.Now(),
		dupLogLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, t := range cfg.Tests {
		if _, ok := s.tests[t.ID]; ok {
			continue
		}
		s.tests[t.ID] = t
		s.order = append(s.order, t.ID)
		s.states[t.ID] = statePending
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Dialect returns the detected output dialect, DialectUnknown until the
// first classifiable record arrives (or forever, for unrecognized streams).
func (s *Session) Dialect() types.Dialect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialect
}

// Write feeds a chunk of runner output into the pipeline. Chunks are
// processed in arrival order; record boundaries need not align with chunk
// boundaries. Write never fails: after cancellation or finalization input
// is silently dropped.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return len(p), nil
	}
	for _, record := range s.scanner.Feed(p) {
		s.ingestRecord(record)
	}
	return len(p), nil
}

func (s *Session) ingestRecord(record string) {
	if s.dialect == types.DialectUnknown {
		if s.detectLeft <= 0 {
			// Unrecognized stream; the whole run degrades to
			// exit-code-only reporting at finalization.
			return
		}
		dialect := parse.DetectDialect(record)
		if dialect == types.DialectUnknown {
			s.window = append(s.window, record)
			s.detectLeft--
			if s.detectLeft == 0 {
				s.log.Warn("could not classify runner output, falling back to exit-code reporting",
					"inspected_records", len(s.window))
				s.window = nil
			}
			return
		}

		s.dialect = dialect
		s.parser = parse.NewParser(dialect)
		s.log.Debug("runner output dialect detected", "dialect", dialect)

		// Replay the records buffered while undecided, then this one.
		replay := append(s.window, record)
		s.window = nil
		for _, r := range replay {
			s.applyRecord(r)
		}
		return
	}

	s.applyRecord(record)
}

func (s *Session) applyRecord(record string) {
	for _, ev := range s.parser.Parse(record) {
		s.applyEvent(ev)
	}
}

func (s *Session) applyEvent(ev parse.Event) {
	switch {
	case ev.Malformed:
		s.malformed++
		s.log.Debug("skipping malformed record")

	case ev.Started != "":
		t, ok := s.resolver.Resolve(ev.Started)
		if !ok {
			s.log.Debug("running announcement matches no requested test", "raw_label", ev.Started)
			return
		}
		if s.states[t.ID] == statePending {
			s.states[t.ID] = stateRunning
			s.reporter.MarkRunning(t)
		}

	case ev.Outcome != nil:
		t, ok := s.resolver.Resolve(ev.Outcome.RawLabel)
		if !ok {
			s.unresolved++
			s.log.Warn("result matches no requested test", "raw_label", ev.Outcome.RawLabel, "verdict", ev.Outcome.Verdict)
			return
		}
		s.applyOutcome(t, ev.Outcome.Verdict, ev.Outcome.Message, ev.Outcome.Duration)
	}
}

// applyOutcome performs a terminal transition. A test already terminal keeps
// its result; the duplicate is counted and logged, never applied.
func (s *Session) applyOutcome(t types.Test, verdict types.Verdict, message string, duration time.Duration) {
	if s.states[t.ID].terminal() {
		s.invalid++
		if s.dupLogLimiter.Allow() {
			s.log.Warn("duplicate terminal result rejected", "test", t.Label, "verdict", verdict)
		}
		return
	}

	s.states[t.ID] = terminalState(verdict)
	s.outcomes = append(s.outcomes, types.ResolvedOutcome{
		Test:     t,
		Verdict:  verdict,
		Duration: duration,
		Message:  message,
	})

	switch verdict {
	case types.VerdictPass:
		s.reporter.MarkPassed(t, duration)
	case types.VerdictFail:
		s.reporter.MarkFailed(t, message, duration)
	case types.VerdictSkip:
		s.reporter.MarkSkipped(t, message)
	}
}

// Cancel terminates the run early: every test not yet terminal is skipped
// with a cancellation message and all further input is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.log.Info("run cancelled")
	for _, id := range s.order {
		if s.states[id].terminal() {
			continue
		}
		s.applyOutcome(s.tests[id], types.VerdictSkip, MsgCancelled, 0)
	}
	s.finish()
	s.cancelled = true
}

// Finalize observes the process exit code, forces every still-pending test
// into a terminal state and returns the run summary. Tests the runner never
// reported on fail with a synthetic message when the exit code is non-zero,
// and are skipped when the run reported success.
func (s *Session) Finalize(exitCode int) types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		if record, ok := s.scanner.Flush(); ok {
			s.ingestRecord(record)
		}
		if s.parser != nil {
			for _, ev := range s.parser.Flush() {
				s.applyEvent(ev)
			}
		}

		for _, id := range s.order {
			if s.states[id].terminal() {
				continue
			}
			if exitCode != 0 {
				s.applyOutcome(s.tests[id], types.VerdictFail, MsgNotReported, 0)
			} else {
				s.applyOutcome(s.tests[id], types.VerdictSkip, MsgReportedSuccess, 0)
			}
		}
		s.finish()
	}

	return s.summary(exitCode)
}

func (s *Session) finish() {
	s.done = true
	s.finishedAt = time.Now()
}

func (s *Session) summary(exitCode int) types.Summary {
	sum := types.Summary{
		RunID:              s.id,
		Dialect:            s.dialect,
		Requested:          len(s.order),
		Unresolved:         s.unresolved,
		Malformed:          s.malformed,
		InvalidTransitions: s.invalid,
		ExitCode:           exitCode,
		Duration:           s.finishedAt.Sub(s.startedAt),
	}
	for _, id := range s.order {
		switch s.states[id] {
		case statePassed:
			sum.Passed++
		case stateFailed:
			sum.Failed++
		case stateSkipped:
			sum.Skipped++
		}
	}
	return sum
}

// Outcomes returns the terminal outcomes applied so far, in application
// order, including synthetic finalization outcomes.
func (s *Session) Outcomes() []types.ResolvedOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ResolvedOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Cancelled reports whether the run was terminated early.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
