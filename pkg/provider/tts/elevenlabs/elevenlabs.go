// Package elevenlabs implements tts.Synthesizer on the ElevenLabs
// stream-input WebSocket API.
//
// Each Synthesize call opens one socket, sends the whole line, flushes and
// collects audio until the server marks the final chunk. Output is raw PCM16
// at the rate encoded in the configured output format (pcm_24000 by default).
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	wsPathFmt        = "/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"

	// ElevenLabs accepts speed in [0.7, 1.2].
	minSpeed = 0.7
	maxSpeed = 1.2
)

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithOutputFormat sets the audio output format. Only pcm_<rate> formats
// are supported.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// WithBaseURL overrides the WebSocket origin (ws:// or wss://).
func WithBaseURL(url string) Option {
	return func(s *Synthesizer) { s.baseURL = strings.TrimRight(url, "/") }
}

// Synthesizer implements tts.Synthesizer backed by ElevenLabs.
type Synthesizer struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	baseURL      string
	sampleRate   int
}

// New creates a Synthesizer speaking with voiceID. apiKey and voiceID must
// be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
	}
	for _, o := range opts {
		o(s)
	}
	rate, err := pcmRate(s.outputFormat)
	if err != nil {
		return nil, err
	}
	s.sampleRate = rate
	return s, nil
}

// ── Wire types ──

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type textMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

// boiMessage opens the stream: authentication plus voice configuration.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, rate float64) (*tts.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	conn, _, err := websocket.Dial(ctx, s.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(16 << 20)

	msgs := [][]byte{
		mustJSON(boiMessage{
			Text:          " ", // the first text value must be non-empty
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: speedFor(rate)},
			XiAPIKey:      s.apiKey,
			OutputFormat:  s.outputFormat,
		}),
		mustJSON(textMessage{Text: text + " ", Flush: true}),
		mustJSON(textMessage{Text: ""}),
	}
	for _, m := range msgs {
		if err := conn.Write(ctx, websocket.MessageText, m); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(pcm) == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return &tts.Speech{PCM: pcm, SampleRate: s.sampleRate}, nil
}

// ── Helpers ──

func (s *Synthesizer) url() string {
	return s.baseURL + fmt.Sprintf(wsPathFmt, s.voiceID, s.model)
}

// speedFor maps a 0.5–2.0 speech rate onto the ElevenLabs speed range.
func speedFor(rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return min(max(rate, minSpeed), maxSpeed)
}

// pcmRate extracts the sample rate from a "pcm_<rate>" format name.
func pcmRate(format string) (int, error) {
	raw, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", format)
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
