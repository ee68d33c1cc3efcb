package lifecycle

// UnitState tracks where a deployment unit is in its lifecycle.
type UnitState string

const (
	// StateValidated is the initial state of every unit.
	StateValidated UnitState = "Validated"
	// StateApplied means infrastructure apply succeeded.
	StateApplied UnitState = "Applied"
	// StateBootstrapComplete is the terminal happy-path state.
	StateBootstrapComplete UnitState = "BootstrapComplete"
	// StateDestroyRequested means the destroy gate evaluated true.
	StateDestroyRequested UnitState = "DestroyRequested"
	// StateInfrastructureDestroyed means the unit's cloud resources are
	// gone but its delivery pipeline still exists.
	StateInfrastructureDestroyed UnitState = "InfrastructureDestroyed"
	// StatePipelineDestroyed is the terminal teardown state. The
	// pipeline goes last because it is the thing doing the tearing down.
	StatePipelineDestroyed UnitState = "PipelineDestroyed"
	// StateFailed marks a unit whose transition failed fatally.
	StateFailed UnitState = "Failed"
)

var transitions = map[UnitState][]UnitState{
	StateValidated:               {StateApplied, StateDestroyRequested, StateFailed},
	StateApplied:                 {StateBootstrapComplete, StateFailed},
	StateDestroyRequested:        {StateInfrastructureDestroyed, StateFailed},
	StateInfrastructureDestroyed: {StatePipelineDestroyed, StateFailed},
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s UnitState) CanTransition(next UnitState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends a unit's lifecycle.
func (s UnitState) Terminal() bool {
	return s == StateBootstrapComplete || s == StatePipelineDestroyed || s == StateFailed
}

// Destroyed reports whether the unit's teardown finished. Units that
// were never tracked at all also count as destroyed for dependency
// checks, which callers express by omitting them.
func (s UnitState) Destroyed() bool {
	return s == StatePipelineDestroyed
}
