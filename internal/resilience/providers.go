package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// LLM is an [llm.Provider] that fails over across a chain of models.
type LLM struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM returns a failover provider with primary first.
func NewLLM(name string, primary llm.Provider, cfg BreakerConfig) *LLM {
	return &LLM{chain: NewChain(name, primary, cfg)}
}

// Add appends a fallback model.
func (f *LLM) Add(name string, p llm.Provider) { f.chain.Add(name, p) }

// Chain returns the underlying chain.
func (f *LLM) Chain() *Chain[llm.Provider] { return f.chain }

// Complete implements llm.Provider.
func (f *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Speech is a [tts.Synthesizer] that fails over across a chain of voices.
type Speech struct {
	chain *Chain[tts.Synthesizer]
}

var _ tts.Synthesizer = (*Speech)(nil)

// NewSpeech returns a failover synthesizer with primary first.
func NewSpeech(name string, primary tts.Synthesizer, cfg BreakerConfig) *Speech {
	return &Speech{chain: NewChain(name, primary, cfg)}
}

// Add appends a fallback synthesizer.
func (f *Speech) Add(name string, s tts.Synthesizer) { f.chain.Add(name, s) }

// Chain returns the underlying chain.
func (f *Speech) Chain() *Chain[tts.Synthesizer] { return f.chain }

// Synthesize implements tts.Synthesizer. Empty text is rejected by the
// primary without consulting fallbacks.
func (f *Speech) Synthesize(ctx context.Context, text string, rate float64) (*tts.Speech, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	return Call(ctx, f.chain, func(ctx context.Context, s tts.Synthesizer) (*tts.Speech, error) {
		return s.Synthesize(ctx, text, rate)
	})
}
