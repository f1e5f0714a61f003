package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

func newTestResolver() *Resolver {
	return New([]types.Test{
		types.NewTest("auth", "login works"),
		types.NewTest("auth", "logout works"),
		types.NewTest("billing", "invoice total"),
	})
}

func TestResolveExactLabel(t *testing.T) {
	r := newTestResolver()
	test, ok := r.Resolve("auth > login works")
	require.True(t, ok)
	assert.Equal(t, types.TestID("auth > login works"), test.ID)
}

func TestResolveNormalizedWhitespace(t *testing.T) {
	r := newTestResolver()
	test, ok := r.Resolve("auth  >   login works")
	require.True(t, ok)
	assert.Equal(t, "login works", test.Name)
}

func TestResolveNormalizationIsCaseSensitive(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("AUTH > LOGIN WORKS")
	assert.False(t, ok)
}

func TestResolveUniqueSuffix(t *testing.T) {
	r := newTestResolver()

	// runner prints its own separator, only the leaf matches
	test, ok := r.Resolve("auth - login works")
	require.True(t, ok)
	assert.Equal(t, "login works", test.Name)

	// bare leaf name
	test, ok = r.Resolve("invoice total")
	require.True(t, ok)
	assert.Equal(t, "billing", test.Suite)
}

func TestResolveAmbiguousSuffixIsMiss(t *testing.T) {
	r := New([]types.Test{
		types.NewTest("auth", "works"),
		types.NewTest("billing", "works"),
	})
	_, ok := r.Resolve("works")
	assert.False(t, ok)
	_, ok = r.Resolve("something - works")
	assert.False(t, ok)
}

func TestResolveSuffixNeedsWordBoundary(t *testing.T) {
	r := New([]types.Test{types.NewTest("s", "car")})
	_, ok := r.Resolve("racecar")
	assert.False(t, ok, "leaf must not match inside a longer word")

	test, ok := r.Resolve("s > car")
	require.True(t, ok)
	assert.Equal(t, "car", test.Name)
}

func TestResolveMiss(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("no such test anywhere")
	assert.False(t, ok)
}

func TestResolveMemoized(t *testing.T) {
	r := newTestResolver()
	first, ok1 := r.Resolve("auth - login works")
	second, ok2 := r.Resolve("auth - login works")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}
