package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// The annotated-text grammar is a template inferred from the runners we have
// seen in the wild, kept in one table so a new tool's glyphs slot in without
// touching the parser.
var markerVerdicts = map[string]types.Verdict{
	"✓": types.VerdictPass,
	"√": types.VerdictPass,
	"✔": types.VerdictPass,
	"✗": types.VerdictFail,
	"✘": types.VerdictFail,
	"×": types.VerdictFail,
	"↓": types.VerdictSkip,
}

var (
	markerRe = regexp.MustCompile(`^\s*([✓√✔✗✘×↓])\s+(.+)$`)
	// trailing duration: "12ms", "1.5s", optionally parenthesized
	durationRe = regexp.MustCompile(`\s+\(?(\d+(?:\.\d+)?)\s?(ms|s|m)\)?$`)
	// indented continuation line carrying failure detail
	continuationRe = regexp.MustCompile(`^\s+[→>-]\s?(.*)$`)
)

// textParser parses the annotated-text dialect. A failed result may be
// followed by indented continuation lines; the failure is held back until
// the first non-continuation line so its message accumulates completely.
type textParser struct {
	pendingFail *types.RawOutcome
}

func (p *textParser) Parse(record string) []Event {
	line := stripansi.Strip(record)

	if p.pendingFail != nil {
		if m := continuationRe.FindStringSubmatch(line); m != nil {
			if p.pendingFail.Message != "" {
				p.pendingFail.Message += "\n"
			}
			p.pendingFail.Message += m[1]
			return nil
		}
	}

	var events []Event
	if p.pendingFail != nil {
		events = append(events, Event{Outcome: p.pendingFail})
		p.pendingFail = nil
	}

	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		// Informational noise interleaved with results. Tolerated, not an error.
		return events
	}

	outcome := &types.RawOutcome{Verdict: markerVerdicts[m[1]]}
	label := strings.TrimSpace(m[2])
	if dm := durationRe.FindStringSubmatch(label); dm != nil {
		outcome.Duration = parseDuration(dm[1], dm[2])
		label = strings.TrimSpace(label[:len(label)-len(dm[0])])
	}
	if label == "" {
		events = append(events, Event{Malformed: true})
		return events
	}
	outcome.RawLabel = label

	if outcome.Verdict == types.VerdictFail {
		p.pendingFail = outcome
		return events
	}
	return append(events, Event{Outcome: outcome})
}

func (p *textParser) Flush() []Event {
	if p.pendingFail == nil {
		return nil
	}
	out := p.pendingFail
	p.pendingFail = nil
	return []Event{{Outcome: out}}
}

func parseDuration(value, unit string) time.Duration {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "ms":
		return time.Duration(f * float64(time.Millisecond))
	case "s":
		return time.Duration(f * float64(time.Second))
	case "m":
		return time.Duration(f * float64(time.Minute))
	default:
		return 0
	}
}
