package selection

// State is a step of a selection session.
type State int

const (
	StateIdle State = iota
	StateListing
	StateSelected
	StateFetching
	StateReady
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListing:
		return "listing"
	case StateSelected:
		return "selected"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the terminal classification of a session.
type Result int

const (
	ResultReady Result = iota
	ResultCancelled
	ResultAborted
)

func (r Result) String() string {
	switch r {
	case ResultReady:
		return "ready"
	case ResultCancelled:
		return "cancelled"
	case ResultAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
