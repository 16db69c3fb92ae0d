package practice

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotAllowed is returned when an action is attempted in a
	// status that does not accept it.
	ErrInputNotAllowed = errors.New("practice: input not allowed in current status")

	// ErrSessionClosed is returned by actions on a closed session.
	ErrSessionClosed = errors.New("practice: session closed")

	// ErrNoSession is returned by Manager.Retry before any session was opened.
	ErrNoSession = errors.New("practice: no session")

	// ErrEmptyPersona is returned when a persona override has no text.
	ErrEmptyPersona = errors.New("practice: persona is empty")
)

// Kind classifies session failures.
type Kind int

const (
	// KindPermissionDenied: the microphone is unavailable. Recoverable by
	// switching to text input or retrying.
	KindPermissionDenied Kind = iota + 1

	// KindConnection: the live channel failed to open or died.
	KindConnection

	// KindRemoteCall: a scoring, generation or assessment call failed or
	// timed out.
	KindRemoteCall

	// KindAudio: an audio device fault other than a refused microphone.
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission-denied"
	case KindConnection:
		return "connection"
	case KindRemoteCall:
		return "remote-call"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure recorded on a session that entered the error or
// permission-denied status.
type Error struct {
	Kind Kind

	// Op names the step that failed, e.g. "turn feedback".
	Op string

	// Message is shown to the learner.
	Message string

	// Troubleshooting holds optional steps the learner can try.
	Troubleshooting []string

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("practice: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("practice: %s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the session status this failure leads to.
func (e *Error) Status() Status {
	if e.Kind == KindPermissionDenied {
		return StatusPermissionDenied
	}
	return StatusError
}

// CanUseTextInput reports whether the text-input fallback is offered.
func (e *Error) CanUseTextInput() bool { return e.Kind == KindPermissionDenied }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{
		Kind:            kind,
		Op:              op,
		Message:         msg,
		Troubleshooting: troubleshooting(kind),
		Err:             err,
	}
}

func troubleshooting(k Kind) []string {
	switch k {
	case KindPermissionDenied:
		return []string{
			"Check that a microphone is connected and not used by another application.",
			"Allow microphone access for this application in your system settings.",
			"Or switch to text input to continue without audio.",
		}
	case KindConnection:
		return []string{
			"Check your internet connection.",
			"Verify the API key for the live provider.",
			"Retry to start a fresh session.",
		}
	case KindAudio:
		return []string{
			"Check your audio device configuration.",
			"Retry to start a fresh session.",
		}
	default:
		return []string{"Retry to start the scenario again."}
	}
}
