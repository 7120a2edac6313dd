package session

import (
	"errors"
	"fmt"
)

// State is the relay protocol state of one browser connection.
type State int

const (
	// StateIdle - no upstream session.
	StateIdle State = iota
	// StateConfiguring - upstream session creation in flight.
	StateConfiguring
	// StateRecording - upstream open, audio accepted.
	StateRecording
	// StateStopping - audio refused, upstream teardown in flight.
	StateStopping
	// StateClosed - browser gone. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConfiguring:
		return "CONFIGURING"
	case StateRecording:
		return "RECORDING"
	case StateStopping:
		return "STOPPING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

var ErrInvalidTransition = errors.New("invalid state transition")

// State transitions:
//
//	IDLE → CONFIGURING → RECORDING → STOPPING → IDLE
//	         │              │
//	         └──→ IDLE      ├──→ IDLE          (upstream error or close)
//	                        └──→ CONFIGURING   (reconfiguration)
//
// Every non-terminal state may move to CLOSED.
var transitions = map[State][]State{
	StateIdle:        {StateConfiguring},
	StateConfiguring: {StateRecording, StateIdle},
	StateRecording:   {StateStopping, StateIdle, StateConfiguring},
	StateStopping:    {StateIdle},
}

func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateClosed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
