// Package tree loads the manifest of discoverable tests. The manifest is the
// source of a run's requested identifiers and their canonical labels; it is
// read-only once loaded and may be shared across concurrent runs.
package tree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// Manifest mirrors the YAML layout:
//
//	suites:
//	  - name: auth
//	    tests:
//	      - name: login works
type Manifest struct {
	Suites []SuiteConfig `yaml:"suites"`
}

type SuiteConfig struct {
	Name  string       `yaml:"name"`
	Tests []TestConfig `yaml:"tests"`
}

type TestConfig struct {
	Name string `yaml:"name"`
}

// Tree is the validated, immutable set of discoverable tests.
type Tree struct {
	tests    []types.Test
	byID     map[types.TestID]types.Test
	bySuite  map[string][]types.Test
	suiteSeq []string
}

// Load reads and validates a manifest file.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return FromManifest(m)
}

// FromManifest validates a manifest and builds the tree.
func FromManifest(m Manifest) (*Tree, error) {
	if len(m.Suites) == 0 {
		return nil, fmt.Errorf("manifest defines no suites")
	}

	t := &Tree{
		byID:    make(map[types.TestID]types.Test),
		bySuite: make(map[string][]types.Test),
	}
	for _, suite := range m.Suites {
		if suite.Name == "" {
			return nil, fmt.Errorf("manifest contains a suite with no name")
		}
		if _, ok := t.bySuite[suite.Name]; ok {
			return nil, fmt.Errorf("duplicate suite %q", suite.Name)
		}
		if len(suite.Tests) == 0 {
			return nil, fmt.Errorf("suite %q defines no tests", suite.Name)
		}
		t.bySuite[suite.Name] = nil
		t.suiteSeq = append(t.suiteSeq, suite.Name)

		for _, tc := range suite.Tests {
			if tc.Name == "" {
				return nil, fmt.Errorf("suite %q contains a test with no name", suite.Name)
			}
			test := types.NewTest(suite.Name, tc.Name)
			if _, ok := t.byID[test.ID]; ok {
				return nil, fmt.Errorf("duplicate test %q", test.Label)
			}
			t.byID[test.ID] = test
			t.bySuite[suite.Name] = append(t.bySuite[suite.Name], test)
			t.tests = append(t.tests, test)
		}
	}
	return t, nil
}

// Tests returns every test in manifest order.
func (t *Tree) Tests() []types.Test {
	out := make([]types.Test, len(t.tests))
	copy(out, t.tests)
	return out
}

// TestsBySuite returns the tests of one suite, or an error for an unknown
// suite name.
func (t *Tree) TestsBySuite(suite string) ([]types.Test, error) {
	tests, ok := t.bySuite[suite]
	if !ok {
		return nil, fmt.Errorf("unknown suite %q (known: %v)", suite, t.suiteSeq)
	}
	out := make([]types.Test, len(tests))
	copy(out, tests)
	return out, nil
}

// Suites returns the suite names in manifest order.
func (t *Tree) Suites() []string {
	out := make([]string, len(t.suiteSeq))
	copy(out, t.suiteSeq)
	return out
}

func (t *Tree) Len() int {
	return len(t.tests)
}
