package stt

import "fmt"

// State is the lifecycle state of one upstream connection.
//
//	Created → Open → Closing → Closed
//	            └──────────────→ Closed   (remote close or error)
//
// Closed is terminal.
type State int

const (
	// StateCreated - connection parameters requested, not yet confirmed open.
	StateCreated State = iota
	// StateOpen - streaming; audio may be sent.
	StateOpen
	// StateClosing - local teardown in progress.
	StateClosing
	// StateClosed - terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Status is a point-in-time view of an upstream handle.
type Status struct {
	Exists bool
	State  State
}
