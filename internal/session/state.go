package session

import "fmt"

// State is the position of a session in its read/dispatch/write cycle.
type State int32

const (
	StateIdle State = iota
	StateReading
	StateReadComplete
	StateWriting
	StateWriteComplete
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateReadComplete:
		return "read_complete"
	case StateWriting:
		return "writing"
	case StateWriteComplete:
		return "write_complete"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// inFlight reports whether an I/O operation is outstanding in this state.
func (s State) inFlight() bool {
	return s == StateReading || s == StateWriting
}
