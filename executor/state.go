package executor

// State is a lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRuntimeCreated
	StateContextCreated
	StateExecuting
	StateDrained
	StateFinalized
	StateReleased
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateRuntimeCreated: "runtime_created",
	StateContextCreated: "context_created",
	StateExecuting:      "executing",
	StateDrained:        "drained",
	StateFinalized:      "finalized",
	StateReleased:       "released",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether Execute has finished with this state.
func (s State) Terminal() bool {
	return s == StateReleased || s == StateFailed
}
