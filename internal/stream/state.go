package stream

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateIdle State = iota
	StateStreaming
	StatePaused
	StateStopped
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// session's current state.
var ErrInvalidTransition = errors.New("stream: invalid state transition")

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of each state. Stopped is terminal.
var transitions = map[State][]State{
	StateIdle:      {StateStreaming},
	StateStreaming: {StatePaused, StateStopped},
	StatePaused:    {StateStreaming, StateStopped},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
