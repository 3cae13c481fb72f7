package call

import "fmt"

// LineState is the lifecycle state of the single call line. Transitions
// are monotonic within one call attempt; a cleared line always returns
// to StateIdle and a torn-down call is never resurrected.
type LineState int

const (
	// StateIdle means no call is active. Pending incoming offers may
	// still exist; they do not occupy the line until accepted.
	StateIdle LineState = iota
	// StateDialing is an outgoing call waiting for the remote answer.
	StateDialing
	// StateRinging is an accepted incoming call before media connects.
	StateRinging
	// StateConnecting is after the answer exchange, before media is up.
	StateConnecting
	// StateConnected means media is flowing.
	StateConnected
	// StateTerminating is a teardown in flight.
	StateTerminating
)

func (s LineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var lineTransitions = map[LineState][]LineState{
	StateIdle:        {StateDialing, StateRinging},
	StateDialing:     {StateConnecting, StateTerminating},
	StateRinging:     {StateConnecting, StateConnected, StateTerminating},
	StateConnecting:  {StateConnected, StateTerminating},
	StateConnected:   {StateTerminating},
	StateTerminating: {StateIdle},
}

// CanTransitionTo reports whether s may legally move to next.
func (s LineState) CanTransitionTo(next LineState) bool {
	for _, allowed := range lineTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Live reports whether the state occupies the line.
func (s LineState) Live() bool {
	return s != StateIdle
}
