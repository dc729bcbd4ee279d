package state

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidTransition indicates that a requested lifecycle transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[State][]State{
	StateActive: {
		StateNotifying,
		// another run won the conditional deactivate
		StateInactive,
	},
	StateNotifying: {
		StateInactive,
		// notification aborted before any delivery; the next run picks it up again
		StateActive,
	},
}

type recorderFunc func(from, to string)

var transitionRecorder atomic.Value

func init() {
	RegisterTransitionRecorder(nil)
}

// RegisterTransitionRecorder allows external packages to observe lifecycle transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		recorder = func(string, string) {}
	}

	transitionRecorder.Store(recorderFunc(recorder))
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}

// Transition validates from -> to and reports it to the registered recorder.
func Transition(from, to State) error {
	if !IsTransitionAllowed(from, to) {
		return ErrInvalidTransition
	}

	transitionRecorder.Load().(recorderFunc)(string(from), string(to))
	return nil
}
