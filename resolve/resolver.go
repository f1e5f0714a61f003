// Package resolve maps the labels a runner prints to the tests that were
// requested for a run. Matching never guesses: an ambiguous partial match is
// a miss, surfaced to the caller as a resolution failure.
package resolve

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const cacheSize = 512

type match struct {
	test types.Test
	ok   bool
}

// Resolver matches raw labels against one run's requested tests.
// The underlying test data is read-only, so a Resolver is safe to share
// within a run; each run builds its own.
type Resolver struct {
	byLabel map[string]types.Test
	byNorm  map[string]types.Test
	tests   []types.Test
	cache   *lru.Cache[string, match]
}

func New(tests []types.Test) *Resolver {
	r := &Resolver{
		byLabel: make(map[string]types.Test, len(tests)),
		byNorm:  make(map[string]types.Test, len(tests)),
		tests:   tests,
	}
	for _, t := range tests {
		r.byLabel[t.Label] = t
		r.byNorm[normalizeLabel(t.Label)] = t
	}
	// error only possible for a non-positive size
	r.cache, _ = lru.New[string, match](cacheSize)
	return r
}

// Resolve applies the matching policy in order, first match wins:
// exact canonical label, whitespace-collapsed label, then unique leaf-name
// suffix. A suffix shared by more than one requested test resolves to no
// match rather than a guess.
func (r *Resolver) Resolve(rawLabel string) (types.Test, bool) {
	if m, ok := r.cache.Get(rawLabel); ok {
		return m.test, m.ok
	}

	test, ok := r.resolve(rawLabel)
	r.cache.Add(rawLabel, match{test: test, ok: ok})
	return test, ok
}

func (r *Resolver) resolve(rawLabel string) (types.Test, bool) {
	if t, ok := r.byLabel[rawLabel]; ok {
		return t, true
	}

	norm := normalizeLabel(rawLabel)
	if t, ok := r.byNorm[norm]; ok {
		return t, true
	}

	var candidate types.Test
	found := 0
	for _, t := range r.tests {
		if leafSuffixMatch(norm, t.Name) {
			candidate = t
			found++
			if found > 1 {
				return types.Test{}, false
			}
		}
	}
	if found == 1 {
		return candidate, true
	}
	return types.Test{}, false
}

// leafSuffixMatch reports whether leaf is a trailing component of label:
// the label ends with the leaf and the leaf is not a fragment of a longer
// word.
func leafSuffixMatch(label, leaf string) bool {
	if leaf == "" || !strings.HasSuffix(label, leaf) {
		return false
	}
	if len(label) == len(leaf) {
		return true
	}
	prev := rune(label[len(label)-len(leaf)-1])
	return !unicode.IsLetter(prev) && !unicode.IsDigit(prev)
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
