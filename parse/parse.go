// Package parse extracts raw test outcomes from runner output records.
// Two dialects are supported: annotated text (marker glyph + label) and
// line-delimited JSON. The dialect is detected once per run from the first
// records; each dialect has its own RecordParser behind a shared contract.
package parse

import "github.com/ethereum-optimism/infra/vitest-bridge/types"

// Event is one observation extracted from a record. Exactly one field is set.
type Event struct {
	// Started carries the raw label of a test the runner announced as running.
	Started string
	// Outcome carries a terminal result for a raw label.
	Outcome *types.RawOutcome
	// Malformed marks a record that belonged to the dialect but could not be
	// decoded. Malformed records are counted, never fatal.
	Malformed bool
}

// RecordParser consumes one record at a time and yields zero or more events.
// Parsers may hold one record of state (multi-line failure detail); Flush
// surfaces whatever is still pending at stream end.
type RecordParser interface {
	Parse(record string) []Event
	Flush() []Event
}

// NewParser returns the parser for a detected dialect.
// Callers must not ask for a parser for DialectUnknown.
func NewParser(d types.Dialect) RecordParser {
	switch d {
	case types.DialectJSON:
		return &jsonParser{}
	default:
		return &textParser{}
	}
}
