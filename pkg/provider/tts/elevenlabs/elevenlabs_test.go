package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "voice"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty voiceID")
	}
	if _, err := New("key", "voice", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
	s, err := New("key", "voice", WithOutputFormat("pcm_16000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", s.sampleRate)
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	s, _ := New("key", "abc123", WithModel("eleven_turbo_v2"))
	want := "wss://api.elevenlabs.io/v1/text-to-speech/abc123/stream-input?model_id=eleven_turbo_v2"
	if got := s.url(); got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestSpeedFor(t *testing.T) {
	t.Parallel()

	tests := []struct{ rate, want float64 }{
		{0, 1},
		{1, 1},
		{0.5, minSpeed},
		{2.0, maxSpeed},
		{1.1, 1.1},
	}
	for _, tt := range tests {
		if got := speedFor(tt.rate); got != tt.want {
			t.Errorf("speedFor(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	s, _ := New("key", "voice")
	if _, err := s.Synthesize(context.Background(), "", 1); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_CollectsUntilFinal(t *testing.T) {
	t.Parallel()

	var boi boiMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, first, err := conn.Read(ctx)
		if err != nil {
			return
		}
		_ = json.Unmarshal(first, &boi)
		// text + flush
		for range 2 {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
		for i, chunk := range [][]byte{{1, 0}, {2, 0}} {
			resp := audioResponse{Audio: base64.StdEncoding.EncodeToString(chunk)}
			if i == 1 {
				resp.IsFinal = true
			}
			data, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	s, err := New("secret", "voice", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	speech, err := s.Synthesize(context.Background(), "Hello there", 1.5)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech.PCM) != string([]byte{1, 0, 2, 0}) {
		t.Errorf("PCM = %v", speech.PCM)
	}
	if speech.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", speech.SampleRate)
	}
	if boi.XiAPIKey != "secret" || boi.OutputFormat != "pcm_24000" {
		t.Errorf("boi = %+v", boi)
	}
	if boi.VoiceSettings == nil || boi.VoiceSettings.Speed != maxSpeed {
		t.Errorf("voice settings = %+v, want speed %v", boi.VoiceSettings, maxSpeed)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for range 3 {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	s, _ := New("key", "voice", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	_, err := s.Synthesize(context.Background(), "Hi", 1)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want server error", err)
	}
}
