package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		dialect types.Dialect
	}{
		{"json result", `{"test":"a","verdict":"pass"}`, types.DialectJSON},
		{"json with aliases", `{"name":"a","status":"failed"}`, types.DialectJSON},
		{"json running event", `{"test":"a","action":"run"}`, types.DialectJSON},
		{"text pass", "✓ auth - login works 12ms", types.DialectText},
		{"text fail", "✗ broken test", types.DialectText},
		{"ansi wrapped text", "\x1b[32m✓\x1b[0m ok", types.DialectText},
		{"json without verdict", `{"foo":"bar"}`, types.DialectUnknown},
		{"banner line", "RUN v1.2.0 /project", types.DialectUnknown},
		{"empty", "", types.DialectUnknown},
		{"binary noise", "\x00\x01\x02", types.DialectUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dialect, DetectDialect(tt.record))
		})
	}
}
