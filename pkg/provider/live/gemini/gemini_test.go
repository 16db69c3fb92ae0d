package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/live"
	"github.com/MrWong99/parley/pkg/provider/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGeminiServer launches a test WebSocket server running handler for
// every accepted connection. The server is closed when the test finishes.
func startGeminiServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
		return false
	}
	return true
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// acceptSetup reads the setup message and acknowledges it.
func acceptSetup(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	readJSON(t, conn, &msg)
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
	return msg
}

var testConfig = live.SessionConfig{Persona: "Sam, a frustrated customer", Language: "Spanish", Level: "Beginner"}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestOpen_SendsSetup(t *testing.T) {
	t.Parallel()

	setupCh := make(chan map[string]any, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, want test-key", got)
		}
		setupCh <- acceptSetup(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)), gemini.WithModel("custom-model"))
	sess, err := p.Open(context.Background(), testConfig, live.Handlers{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	msg := <-setupCh
	setup, _ := msg["setup"].(map[string]any)
	if setup["model"] != "models/custom-model" {
		t.Errorf("model = %v, want models/custom-model", setup["model"])
	}
	if _, ok := setup["inputAudioTranscription"]; !ok {
		t.Error("setup must enable inputAudioTranscription")
	}
	instr, _ := json.Marshal(setup["systemInstruction"])
	for _, want := range []string{"Sam, a frustrated customer", "Spanish", "Beginner"} {
		if !strings.Contains(string(instr), want) {
			t.Errorf("system instruction missing %q: %s", want, instr)
		}
	}
}

func TestOpen_SetupTimeout(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// Never acknowledge.
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)), gemini.WithSetupTimeout(100*time.Millisecond))
	if _, err := p.Open(context.Background(), testConfig, live.Handlers{}); err == nil {
		t.Fatal("expected setup timeout error")
	}
}

func TestOpen_SetupError(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg map[string]any
		readJSON(t, conn, &msg)
		writeJSON(t, conn, map[string]any{"error": map[string]any{"code": 403, "message": "API key invalid"}})
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("bad", gemini.WithBaseURL(wsURL(srv)))
	_, err := p.Open(context.Background(), testConfig, live.Handlers{})
	if err == nil || !strings.Contains(err.Error(), "API key invalid") {
		t.Fatalf("err = %v, want server error message", err)
	}
}

func TestOpen_DialFailure(t *testing.T) {
	t.Parallel()

	p := gemini.New("k", gemini.WithBaseURL("ws://127.0.0.1:1"))
	if _, err := p.Open(context.Background(), testConfig, live.Handlers{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSendAudio_Format(t *testing.T) {
	t.Parallel()

	chunkCh := make(chan map[string]any, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		var msg map[string]any
		if readJSON(t, conn, &msg) {
			chunkCh <- msg
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Open(context.Background(), testConfig, live.Handlers{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	frame := []byte{1, 2, 3, 4}
	if err := sess.SendAudio(context.Background(), frame); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-chunkCh:
		ri, _ := msg["realtimeInput"].(map[string]any)
		chunks, _ := ri["mediaChunks"].([]any)
		if len(chunks) != 1 {
			t.Fatalf("mediaChunks = %v, want 1 chunk", chunks)
		}
		c := chunks[0].(map[string]any)
		if c["mimeType"] != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %v", c["mimeType"])
		}
		if c["data"] != base64.StdEncoding.EncodeToString(frame) {
			t.Errorf("data = %v", c["data"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio chunk")
	}
}

func TestHandlers_TranscriptionAndTurnComplete(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"inputTranscription": map[string]any{"text": "Hola, "}}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"inputTranscription": map[string]any{"text": "buenos días"}}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		<-conn.CloseRead(context.Background()).Done()
	})

	var (
		mu        sync.Mutex
		fragments []string
	)
	turnDone := make(chan struct{})
	var once sync.Once
	h := live.Handlers{
		OnTranscription: func(f string) {
			mu.Lock()
			fragments = append(fragments, f)
			mu.Unlock()
		},
		OnTurnComplete: func() { once.Do(func() { close(turnDone) }) },
	}

	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Open(context.Background(), testConfig, h)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for turnComplete")
	}
	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(fragments, ""); got != "Hola, buenos días" {
		t.Errorf("fragments joined = %q", got)
	}
}

func TestOnClose_RemoteDrop(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		conn.Close(websocket.StatusGoingAway, "server restart")
	})

	closed := make(chan error, 1)
	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Open(context.Background(), testConfig, live.Handlers{
		OnClose: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Error("remote drop should report a non-nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnClose")
	}

	if err := sess.SendAudio(context.Background(), []byte{0, 0}); !errors.Is(err, gemini.ErrSessionClosed) {
		t.Errorf("SendAudio after drop err = %v, want ErrSessionClosed", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Close after drop: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	var calls int
	var mu sync.Mutex
	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Open(context.Background(), testConfig, live.Handlers{
		OnClose: func(err error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if err != nil {
				t.Errorf("local close reported err %v", err)
			}
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 3 {
		if err := sess.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("OnClose calls = %d, want 1", calls)
	}
}
