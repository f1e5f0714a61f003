package parse

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// jsonRecord accepts the field aliases seen across structured runners.
// Durations are milliseconds under either key.
type jsonRecord struct {
	Test       string   `json:"test"`
	Name       string   `json:"name"`
	Verdict    string   `json:"verdict"`
	Status     string   `json:"status"`
	Action     string   `json:"action"`
	DurationMs *float64 `json:"durationMs"`
	Duration   *float64 `json:"duration"`
	Message    string   `json:"message"`
}

func (r *jsonRecord) label() string {
	if r.Test != "" {
		return r.Test
	}
	return r.Name
}

func (r *jsonRecord) verdict() string {
	for _, v := range []string{r.Verdict, r.Status, r.Action} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r *jsonRecord) durationValue() time.Duration {
	ms := r.DurationMs
	if ms == nil {
		ms = r.Duration
	}
	if ms == nil {
		return 0
	}
	return time.Duration(*ms * float64(time.Millisecond))
}

// jsonParser parses the structured dialect: one JSON object per record.
// Each record decodes independently; malformed records are reported as
// events so the session can count them, and never abort the stream.
type jsonParser struct{}

func (p *jsonParser) Parse(record string) []Event {
	record = strings.TrimSpace(record)
	if record == "" {
		return nil
	}

	var rec jsonRecord
	if err := json.Unmarshal([]byte(record), &rec); err != nil {
		return []Event{{Malformed: true}}
	}
	label := rec.label()
	if label == "" {
		return []Event{{Malformed: true}}
	}

	switch normalizeVerdict(rec.verdict()) {
	case types.VerdictPass, types.VerdictFail, types.VerdictSkip:
		return []Event{{Outcome: &types.RawOutcome{
			RawLabel: label,
			Verdict:  normalizeVerdict(rec.verdict()),
			Duration: rec.durationValue(),
			Message:  rec.Message,
		}}}
	case verdictStarted:
		return []Event{{Started: label}}
	default:
		return []Event{{Malformed: true}}
	}
}

func (p *jsonParser) Flush() []Event { return nil }

// verdictStarted is internal to parsing; the session never sees it as a
// terminal verdict.
const verdictStarted types.Verdict = "started"

func normalizeVerdict(v string) types.Verdict {
	switch strings.ToLower(v) {
	case "pass", "passed", "ok":
		return types.VerdictPass
	case "fail", "failed":
		return types.VerdictFail
	case "skip", "skipped":
		return types.VerdictSkip
	case "run", "running", "start", "started":
		return verdictStarted
	default:
		return ""
	}
}
