// Package mock provides a test double for tts.Synthesizer.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// SynthesizeCall records one Synthesize invocation.
type SynthesizeCall struct {
	Text string
	Rate float64
}

// Synthesizer is a configurable tts.Synthesizer. The zero value returns a
// 100 ms silent clip at 24 kHz.
type Synthesizer struct {
	mu sync.Mutex

	// Speech is returned by Synthesize when SynthesizeErr is nil.
	Speech *tts.Speech

	// SynthesizeErr, if non-nil, is returned instead of Speech.
	SynthesizeErr error

	// Hook, if set, runs with the text before each reply.
	Hook func(text string)

	calls []SynthesizeCall
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, rate float64) (*tts.Speech, error) {
	s.mu.Lock()
	hook := s.Hook
	s.mu.Unlock()
	if hook != nil {
		hook(text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SynthesizeCall{Text: text, Rate: rate})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.SynthesizeErr != nil {
		return nil, s.SynthesizeErr
	}
	if s.Speech != nil {
		return s.Speech, nil
	}
	return &tts.Speech{PCM: make([]byte, 4800), SampleRate: 24000}, nil
}

// Calls returns a copy of all recorded calls.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Texts returns the text of every recorded call in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Text
	}
	return out
}
