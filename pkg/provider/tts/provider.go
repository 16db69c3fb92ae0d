// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A synthesizer turns one line of coach dialogue into a single PCM16 mono
// clip ready for playback. Speech rate is a hint: 1.0 is normal, values
// above are faster and below are slower. Backends that cannot honour it
// exactly approximate it.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
)

// Speech is one synthesised clip.
type Speech struct {
	// PCM holds 16-bit little-endian mono samples.
	PCM []byte

	// SampleRate of PCM in Hz.
	SampleRate int
}

// Duration returns the clip length in seconds.
func (s *Speech) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(len(s.PCM)/2) / float64(s.SampleRate)
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text at the given speech rate. Empty text returns
	// [ErrEmptyText].
	Synthesize(ctx context.Context, text string, rate float64) (*Speech, error)
}

// ErrEmptyText is returned when there is nothing to synthesise.
var ErrEmptyText = fmt.Errorf("tts: empty text")

// RateHint describes rate as a pacing phrase for prompt-driven synthesis:
// "a normal", "a slightly faster" or "a slightly slower".
func RateHint(rate float64) string {
	switch {
	case rate == 1 || rate == 0:
		return "a normal"
	case rate > 1:
		return "a slightly faster"
	default:
		return "a slightly slower"
	}
}

// PacedPrompt wraps text with a pacing instruction.
func PacedPrompt(text string, rate float64) string {
	return fmt.Sprintf("Speak at %s pace: %s", RateHint(rate), text)
}
