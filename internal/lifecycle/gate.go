package lifecycle

import "github.com/tobkre/flotilla/internal/config"

// ShouldDestroy decides whether teardown may proceed for a unit. It is a
// pure function of the declared delete request: only an explicit true in
// the descriptor opens the gate. Absent, null and malformed declarations
// were already folded to false at parse time, so the default is always
// "do not destroy".
//
// The gate is cheap and side-effect free; callers re-evaluate it at every
// phase boundary rather than caching the answer, so a configuration
// change between phases is always honored.
func ShouldDestroy(unit config.DeploymentUnit) bool {
	return unit.DeleteRequested
}
