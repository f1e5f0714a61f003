// Package exitcodes defines the standard exit codes used by vitest-bridge.
package exitcodes

// Exit code constants used by vitest-bridge:
//
// * Success (0): Used when all requested tests pass
// * RunFailure (1): Used when one or more requested tests fail
// * RuntimeErr (2): Used for runtime errors such as bad configuration or a
//   runner that cannot be started
const (
	Success    = 0
	RunFailure = 1
	RuntimeErr = 2
)
