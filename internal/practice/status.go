package practice

import (
	"errors"
	"fmt"
	"slices"
)

// Status is the single source of truth for what a session is doing and
// which learner actions it accepts.
type Status string

const (
	StatusInitializing     Status = "initializing"
	StatusSpeaking         Status = "speaking"
	StatusReady            Status = "ready"
	StatusListening        Status = "listening"
	StatusProcessing       Status = "processing"
	StatusEvaluating       Status = "evaluating"
	StatusTurnComplete     Status = "turn-complete"
	StatusAssessingFinal   Status = "assessing-final"
	StatusScenarioComplete Status = "scenario-complete"
	StatusError            Status = "error"
	StatusPermissionDenied Status = "permission-denied"
)

// ErrInvalidTransition is wrapped by every rejected status change.
var ErrInvalidTransition = errors.New("practice: invalid status transition")

// transitions lists the allowed targets per status. error and
// permission-denied are added to every non-terminal status by canTransition.
var transitions = map[Status][]Status{
	StatusInitializing:   {StatusSpeaking},
	StatusSpeaking:       {StatusReady, StatusTurnComplete},
	StatusReady:          {StatusListening, StatusProcessing},
	StatusListening:      {StatusProcessing},
	StatusProcessing:     {StatusEvaluating, StatusSpeaking},
	StatusEvaluating:     {StatusSpeaking, StatusAssessingFinal},
	StatusTurnComplete:   {StatusReady},
	StatusAssessingFinal: {StatusScenarioComplete},

	// Left only by switching to text input.
	StatusPermissionDenied: {StatusSpeaking, StatusReady},
}

// Terminal reports whether no further progress is possible in this attempt.
func (s Status) Terminal() bool {
	return s == StatusScenarioComplete || s == StatusError
}

// AcceptsInput reports whether a recording or text submission may begin.
func (s Status) AcceptsInput() bool {
	return s == StatusReady || s == StatusTurnComplete
}

func (s Status) String() string { return string(s) }

func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	if to == StatusPermissionDenied {
		return from != StatusPermissionDenied
	}
	return slices.Contains(transitions[from], to)
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
