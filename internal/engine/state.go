package engine

import "fmt"

// State is a dispatch lifecycle state.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateExecuting State = "EXECUTING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

var transitions = map[State][]State{
	StateReceived:  {StateValidated, StateFailed},
	StateValidated: {StateExecuting, StateFailed},
	StateExecuting: {StateSucceeded, StateFailed},
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks one invocation. Not safe for concurrent use; each dispatch
// owns its own.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateReceived, history: []State{StateReceived}}
}

func (m *machine) advance(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
