// Package live defines the Provider interface for the live conversational
// channel: a duplex, stateful connection to a remote model that receives the
// learner's microphone audio and streams back transcription of what it heard.
//
// The channel is used for its input transcription. The practice session
// decides turn boundaries from local record/stop actions, so the remote
// turn-complete signal is informational only.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"fmt"
)

// InputMIMEType is the wire format of audio frames sent with
// [Session.SendAudio]: 16-bit little-endian mono PCM at 16 kHz.
const InputMIMEType = "audio/pcm;rate=16000"

// SessionConfig describes the conversation a live session is opened for.
type SessionConfig struct {
	// Persona is the character brief the remote model plays.
	Persona string

	// Language is the language the learner practises in, e.g. "Spanish".
	Language string

	// Level is the learner's self-assessed proficiency, e.g. "Beginner".
	Level string
}

// Instructions renders the system instruction sent when the session opens.
func (c SessionConfig) Instructions() string {
	return fmt.Sprintf(`You are an AI Practice Coach. Your persona is: %q.
You are having a practice conversation with a user.
The user wants to practice their speaking skills in %s.
The user's self-assessed proficiency is %s. Tailor your vocabulary and sentence complexity accordingly.
Keep your responses concise and in character. Do not break character. Do not mention that you are an AI.
Speak only in %s.`, c.Persona, c.Language, c.Level, c.Language)
}

// Handlers receives session events. Callbacks run on the session's receive
// goroutine and must not block. Any field may be nil.
type Handlers struct {
	// OnTranscription delivers a fragment of the learner's recognised speech.
	// Fragments are incremental: callers append them, never replace.
	OnTranscription func(fragment string)

	// OnTurnComplete fires when the remote side considers its turn finished.
	OnTurnComplete func()

	// OnClose fires at most once when the session ends. err is nil when the
	// session was closed locally and non-nil when the remote side failed or
	// dropped the connection.
	OnClose func(err error)
}

// Session is an open live channel.
type Session interface {
	// SendAudio delivers one PCM16 frame in [InputMIMEType] format.
	// Returns an error if the session is closed or the write fails.
	SendAudio(ctx context.Context, frame []byte) error

	// Close terminates the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Open connects a new session and returns once the remote side has
	// acknowledged the configuration. Fails if the channel cannot be
	// established.
	Open(ctx context.Context, cfg SessionConfig, h Handlers) (Session, error)
}
