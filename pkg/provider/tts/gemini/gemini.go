// Package gemini implements tts.Synthesizer with Gemini's speech-generation
// models through google.golang.org/genai.
//
// Pacing is requested in the prompt ("Speak at a slightly slower pace: ...")
// because the model follows natural-language direction more reliably than
// markup. Output is 24 kHz PCM16 mono.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultModel = "gemini-2.5-flash-preview-tts"
	defaultVoice = "Kore"

	// OutputRate is the sample rate of Gemini TTS audio.
	OutputRate = 24000
)

// Synthesizer implements tts.Synthesizer on Gemini.
type Synthesizer struct {
	client *genai.Client
	model  string
	voice  string
}

type config struct {
	model   string
	voice   string
	baseURL string
}

// Option is a functional option for [New].
type Option func(*config)

// WithModel sets the TTS model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the prebuilt voice (default Kore).
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithBaseURL overrides the API endpoint. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New creates a Gemini synthesizer.
func New(ctx context.Context, apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini tts: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel, voice: defaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: create client: %w", err)
	}
	return &Synthesizer{client: client, model: cfg.model, voice: cfg.voice}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, rate float64) (*tts.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	gc := &genai.GenerateContentConfig{
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	}
	gc.ResponseModalities = append(gc.ResponseModalities, "AUDIO")

	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(tts.PacedPrompt(text, rate)), gc)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: generate: %w", err)
	}
	pcm := inlineAudio(result)
	if len(pcm) == 0 {
		return nil, errors.New("gemini tts: response carried no audio")
	}
	return &tts.Speech{PCM: pcm, SampleRate: OutputRate}, nil
}

// inlineAudio returns the first inline audio payload of the first candidate.
func inlineAudio(result *genai.GenerateContentResponse) []byte {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil
	}
	for _, p := range result.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data
		}
	}
	return nil
}
