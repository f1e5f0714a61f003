package parse

import (
	"encoding/json"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// DefaultDetectWindow is how many leading records a session inspects before
// giving up on classification and degrading to exit-code-only reporting.
const DefaultDetectWindow = 10

// DetectDialect classifies a single record. The first record that matches a
// grammar decides the dialect for the whole run.
func DetectDialect(record string) types.Dialect {
	line := strings.TrimSpace(stripansi.Strip(record))
	if line == "" {
		return types.DialectUnknown
	}

	if strings.HasPrefix(line, "{") {
		var rec jsonRecord
		if err := json.Unmarshal([]byte(line), &rec); err == nil {
			if rec.label() != "" && normalizeVerdict(rec.verdict()) != "" {
				return types.DialectJSON
			}
		}
	}

	if markerRe.MatchString(line) {
		return types.DialectText
	}
	return types.DialectUnknown
}
