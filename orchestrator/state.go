package orchestrator

import (
	"slices"
)

type State int

const (
	StatePending State = iota
	StateKeyRequested
	StateAcquiring
	StateTranscoding
	StateTagging
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateKeyRequested:
		return "key_requested"
	case StateAcquiring:
		return "acquiring"
	case StateTranscoding:
		return "transcoding"
	case StateTagging:
		return "tagging"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StatePending:      {StateKeyRequested, StateFailed},
	StateKeyRequested: {StateAcquiring, StateFailed},
	StateAcquiring:    {StateTranscoding, StateFailed},
	StateTranscoding:  {StateTagging, StateFailed},
	StateTagging:      {StateCompleted, StateFailed},
}

func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(transitions[s], next)
}
