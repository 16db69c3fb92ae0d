package practice

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/provider/live"
	livemock "github.com/MrWong99/parley/pkg/provider/live/mock"
)

func newTestTransport(t *testing.T, p live.Provider) *Transport {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return NewTransport(p, m, nil)
}

func TestTransport_SingleChannel(t *testing.T) {
	p := &livemock.Provider{}
	tr := newTestTransport(t, p)
	ctx := context.Background()

	var failures []error
	ev := TransportEvents{OnFailure: func(err error) { failures = append(failures, err) }}
	if err := tr.Open(ctx, live.SessionConfig{Persona: "p"}, ev); err != nil {
		t.Fatal(err)
	}
	first := p.Last()
	if err := tr.Open(ctx, live.SessionConfig{Persona: "p"}, ev); err != nil {
		t.Fatal(err)
	}
	if !first.Closed() {
		t.Error("previous channel left open")
	}
	if n := p.OpenSessions(); n != 1 {
		t.Errorf("open sessions = %d, want 1", n)
	}

	// Events from the replaced channel are ignored.
	first.Transcribe("stale")
	if got := tr.Snapshot(); got != "" {
		t.Errorf("buffer = %q, want empty", got)
	}
	if len(failures) != 0 {
		t.Errorf("failures from local close: %v", failures)
	}

	p.Last().Transcribe("hola ")
	p.Last().Transcribe("amigo")
	if got := tr.Snapshot(); got != "hola amigo" {
		t.Errorf("buffer = %q", got)
	}
	tr.Reset()
	if got := tr.Snapshot(); got != "" {
		t.Errorf("buffer after reset = %q", got)
	}

	p.Last().Drop(errBoom)
	if len(failures) != 1 || !errors.Is(failures[0], errBoom) {
		t.Errorf("failures = %v", failures)
	}
}

func TestTransport_SendIsFireAndForget(t *testing.T) {
	p := &livemock.Provider{}
	tr := newTestTransport(t, p)
	ctx := context.Background()

	tr.Send([]byte{1, 2}) // no channel: dropped
	if err := tr.Open(ctx, live.SessionConfig{}, TransportEvents{}); err != nil {
		t.Fatal(err)
	}
	tr.Send([]byte{1, 2})
	tr.Send([]byte{3, 4})
	eventually(t, "two frames on the channel", func() bool { return len(p.Last().Frames()) == 2 })

	p.SendErr = errBoom
	if err := tr.Open(ctx, live.SessionConfig{}, TransportEvents{}); err != nil {
		t.Fatal(err)
	}
	tr.Send([]byte{5, 6})
	eventually(t, "failed frame counted", func() bool {
		sent, failed := tr.Stats()
		return sent == 2 && failed == 1
	})
}

// stalledProvider hands out channels whose writes block until cancelled.
type stalledProvider struct {
	livemock.Provider
	writes chan struct{}
}

func (p *stalledProvider) Open(ctx context.Context, cfg live.SessionConfig, h live.Handlers) (live.Session, error) {
	sess, err := p.Provider.Open(ctx, cfg, h)
	if err != nil {
		return nil, err
	}
	return &stalledSession{Session: sess, writes: p.writes}, nil
}

type stalledSession struct {
	live.Session
	writes chan struct{}
}

func (s *stalledSession) SendAudio(ctx context.Context, _ []byte) error {
	select {
	case s.writes <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTransport_StalledUplinkDropsFrames(t *testing.T) {
	p := &stalledProvider{writes: make(chan struct{}, 1)}
	tr := newTestTransport(t, p)
	if err := tr.Open(context.Background(), live.SessionConfig{}, TransportEvents{}); err != nil {
		t.Fatal(err)
	}

	tr.Send([]byte{0})
	<-p.writes
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range SendQueueFrames + 10 {
			tr.Send([]byte{1, 2})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked behind a stalled write")
	}
	if _, failed := tr.Stats(); failed < 10 {
		t.Errorf("failed = %d, want at least 10 dropped frames", failed)
	}

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a stalled write")
	}
}

func TestTransport_Close(t *testing.T) {
	p := &livemock.Provider{}
	tr := newTestTransport(t, p)
	ctx := context.Background()

	if err := tr.Close(); err != nil {
		t.Fatalf("Close without channel: %v", err)
	}
	tr = newTestTransport(t, p)
	if err := tr.Open(ctx, live.SessionConfig{}, TransportEvents{}); err != nil {
		t.Fatal(err)
	}
	if !tr.IsOpen() {
		t.Fatal("IsOpen = false after Open")
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if tr.IsOpen() || p.OpenSessions() != 0 {
		t.Error("channel still open after Close")
	}
	if err := tr.Open(ctx, live.SessionConfig{}, TransportEvents{}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Open after Close = %v, want ErrTransportClosed", err)
	}
}

func TestTransport_OpenError(t *testing.T) {
	p := &livemock.Provider{OpenErr: errBoom}
	tr := newTestTransport(t, p)
	if err := tr.Open(context.Background(), live.SessionConfig{}, TransportEvents{}); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
	if tr.IsOpen() {
		t.Error("IsOpen after failed Open")
	}
}
