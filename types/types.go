// Package types holds the shared data model of the bridge: test identity,
// verdicts, parsed outcomes and the per-run summary.
package types

import (
	"fmt"
	"time"
)

// TestID uniquely identifies a discoverable test. It is equal to the test's
// canonical hierarchical label ("<suite> > <name>") and is assigned when the
// manifest is loaded. The pipeline references it, never mutates it.
type TestID string

// LabelSeparator joins the suite and test name into the canonical label.
const LabelSeparator = " > "

// Test is one discoverable test from the manifest.
type Test struct {
	ID    TestID
	Suite string
	Name  string
	Label string
}

// NewTest builds a Test with its canonical label and ID.
func NewTest(suite, name string) Test {
	label := suite + LabelSeparator + name
	if suite == "" {
		label = name
	}
	return Test{
		ID:    TestID(label),
		Suite: suite,
		Name:  name,
		Label: label,
	}
}

// Verdict is the terminal classification of a single test's execution.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
	VerdictSkip Verdict = "skip"
)

// Dialect is the output grammar variant a given run's process emits.
// It is decided once per run from the first records and never changes mid-run.
type Dialect string

const (
	DialectUnknown Dialect = "unknown"
	DialectText    Dialect = "text"
	DialectJSON    Dialect = "json"
)

// RawOutcome is the transient product of the record parser: a verdict
// attached to whatever label the runner printed, before identity resolution.
type RawOutcome struct {
	RawLabel string
	Verdict  Verdict
	Duration time.Duration
	Message  string
}

// ResolvedOutcome is a RawOutcome whose label matched a requested test.
// At most one ResolvedOutcome is applied per TestID per run.
type ResolvedOutcome struct {
	Test     Test
	Verdict  Verdict
	Duration time.Duration
	Message  string
}

// Summary is the per-run rollup emitted once at finalization.
type Summary struct {
	RunID              string        `json:"run_id"`
	Dialect            Dialect       `json:"dialect"`
	Requested          int           `json:"requested"`
	Passed             int           `json:"passed"`
	Failed             int           `json:"failed"`
	Skipped            int           `json:"skipped"`
	Unresolved         int           `json:"unresolved"`
	Malformed          int           `json:"malformed"`
	InvalidTransitions int           `json:"invalid_transitions"`
	ExitCode           int           `json:"exit_code"`
	Duration           time.Duration `json:"duration"`
}

// Status collapses the summary into a single verdict for exit-code and
// display purposes. Any failed test fails the run.
func (s Summary) Status() Verdict {
	switch {
	case s.Failed > 0:
		return VerdictFail
	case s.Passed == 0 && s.Skipped > 0:
		return VerdictSkip
	default:
		return VerdictPass
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("run %s: %s (requested=%d passed=%d failed=%d skipped=%d unresolved=%d dialect=%s exit=%d duration=%.1fs)",
		s.RunID, s.Status(), s.Requested, s.Passed, s.Failed, s.Skipped, s.Unresolved, s.Dialect, s.ExitCode, s.Duration.Seconds())
}
