package practice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/provider/live"
)

// ErrTransportClosed is returned by Open after Close.
var ErrTransportClosed = errors.New("practice: transport closed")

const (
	// SendQueueFrames is how many frames may wait for the uplink before new
	// frames are dropped.
	SendQueueFrames = 32

	// FrameSendTimeout bounds a single frame write to the live channel.
	FrameSendTimeout = 2 * time.Second
)

// Transport owns at most one live channel and accumulates the learner's
// recognised speech between resets.
//
// Audio is sent fire-and-forget: frames are queued for a sender goroutine
// owned by the open channel. A full queue drops the frame and a failed
// write is logged and counted; neither is surfaced to the caller.
type Transport struct {
	provider live.Provider
	metrics  *observe.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	sess   live.Session
	uplink *uplink
	gen    uint64
	closed bool
	buf    strings.Builder

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// uplink drains queued frames into one channel.
type uplink struct {
	frames chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// TransportEvents receives channel events. Either field may be nil.
type TransportEvents struct {
	// OnText fires after a transcription fragment was appended.
	OnText func()

	// OnFailure fires when the open channel dies with a non-nil error.
	OnFailure func(err error)
}

// NewTransport creates a closed-until-opened transport over p.
func NewTransport(p live.Provider, m *observe.Metrics, log *slog.Logger) *Transport {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transport{provider: p, metrics: m, log: log}
}

// Open connects a new channel. A previously open channel is closed first so
// only one is ever held.
func (t *Transport) Open(ctx context.Context, cfg live.SessionConfig, ev TransportEvents) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	prev, prevUp := t.sess, t.uplink
	t.sess, t.uplink = nil, nil
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	if prev != nil {
		_ = t.stop(prev, prevUp)
	}

	sess, err := t.provider.Open(ctx, cfg, live.Handlers{
		OnTranscription: func(fragment string) {
			if !t.current(gen) {
				return
			}
			t.mu.Lock()
			t.buf.WriteString(fragment)
			t.mu.Unlock()
			if ev.OnText != nil {
				ev.OnText()
			}
		},
		OnTurnComplete: func() {
			t.log.Debug("live channel turn complete")
		},
		OnClose: func(err error) {
			if err == nil || !t.current(gen) {
				return
			}
			t.log.Warn("live channel dropped", "err", err)
			if ev.OnFailure != nil {
				ev.OnFailure(err)
			}
		},
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed || t.gen != gen {
		t.mu.Unlock()
		_ = sess.Close()
		return ErrTransportClosed
	}
	t.sess = sess
	t.uplink = t.startUplink(sess)
	t.mu.Unlock()
	return nil
}

func (t *Transport) startUplink(sess live.Session) *uplink {
	ctx, cancel := context.WithCancel(context.Background())
	up := &uplink{
		frames: make(chan []byte, SendQueueFrames),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(up.done)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-up.frames:
				t.write(ctx, sess, frame)
			}
		}
	}()
	return up
}

func (t *Transport) write(ctx context.Context, sess live.Session, frame []byte) {
	fctx, cancel := context.WithTimeout(ctx, FrameSendTimeout)
	err := sess.SendAudio(fctx, frame)
	cancel()
	if ctx.Err() != nil {
		return
	}
	t.metrics.RecordFrame(ctx, err)
	if err != nil {
		t.failed.Add(1)
		t.log.Debug("live channel send failed", "err", err)
		return
	}
	t.sent.Add(1)
}

// stop closes sess and waits for its sender to exit.
func (t *Transport) stop(sess live.Session, up *uplink) error {
	if up != nil {
		up.cancel()
	}
	err := sess.Close()
	if up != nil {
		<-up.done
	}
	return err
}

// current reports whether gen is still the live generation.
func (t *Transport) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.gen == gen
}

// Send queues one PCM16 frame for the open channel and never blocks. It
// does nothing when no channel is open and drops the frame when the queue
// is full.
func (t *Transport) Send(frame []byte) {
	t.mu.Lock()
	up := t.uplink
	t.mu.Unlock()
	if up == nil {
		return
	}
	select {
	case up.frames <- frame:
	default:
		t.metrics.RecordFrameDropped(context.Background())
		if t.dropped.Add(1) == 1 {
			t.log.Warn("live channel congested, dropping audio frames")
		}
	}
}

// Snapshot returns the transcription accumulated since the last reset.
func (t *Transport) Snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Reset clears the transcription buffer.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.buf.Reset()
	t.mu.Unlock()
}

// IsOpen reports whether a channel is currently held.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil
}

// Stats returns how many frames were sent and how many failed, either on
// write or by being dropped from a full queue.
func (t *Transport) Stats() (sent, failed int64) {
	return t.sent.Load(), t.failed.Load() + t.dropped.Load()
}

// Close terminates the channel and rejects further opens. It is safe to call
// with no channel open and more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	sess, up := t.sess, t.uplink
	t.sess, t.uplink = nil, nil
	t.closed = true
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	return t.stop(sess, up)
}
