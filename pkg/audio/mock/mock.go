// Package mock provides an in-memory [audio.Backend] for unit tests.
//
// The backend records every context and stream it opens so tests can assert
// that nothing leaks between sessions. Capture streams deliver frames pushed
// with [Backend.Push]; playback streams record what was written.
//
// Typical usage:
//
//	b := mock.NewBackend()
//	m := audio.NewContextManager(b)
//	lease, _ := m.Acquire()
//	rec := audio.NewRecorder(lease, 4096)
//	_ = rec.Start(ctx, onFrame)
//	b.Push(make([]float32, 4096))
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// Backend is a mock implementation of [audio.Backend]. Set the exported
// fields before use; inspect the counters after.
type Backend struct {
	mu sync.Mutex

	// NewContextErr is returned by NewContext when non-nil.
	NewContextErr error

	// InputErr is returned by OpenInput when non-nil. Use
	// [audio.ErrPermissionDenied] to simulate a refused microphone.
	InputErr error

	// WriteDelay is slept on every playback Write to simulate device time.
	WriteDelay time.Duration

	frames chan []float32

	contexts     []*Context
	inputs       []*InputStream
	outputs      []*OutputStream
	openContexts int
	openInputs   int
	openOutputs  int
}

// NewBackend returns a ready backend with a buffered frame queue.
func NewBackend() *Backend {
	return &Backend{frames: make(chan []float32, 64)}
}

// NewContext implements [audio.Backend].
func (b *Backend) NewContext(sampleRate int) (audio.DeviceContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewContextErr != nil {
		return nil, b.NewContextErr
	}
	c := &Context{b: b, rate: sampleRate}
	b.contexts = append(b.contexts, c)
	b.openContexts++
	return c, nil
}

// Push queues one capture block. It is delivered to whichever input stream
// reads next.
func (b *Backend) Push(samples []float32) {
	b.frames <- samples
}

// OpenContexts returns the number of contexts created and not yet closed.
func (b *Backend) OpenContexts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openContexts
}

// OpenInputs returns the number of capture streams not yet closed.
func (b *Backend) OpenInputs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openInputs
}

// OpenOutputs returns the number of playback streams not yet closed.
func (b *Backend) OpenOutputs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openOutputs
}

// ContextCount returns how many contexts were ever created.
func (b *Backend) ContextCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contexts)
}

// Outputs returns every playback stream opened so far, in order.
func (b *Backend) Outputs() []*OutputStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*OutputStream, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// ─── Context ──────────────────────────────────────────────────────────────────

// Context is a mock [audio.DeviceContext].
type Context struct {
	b      *Backend
	rate   int
	closed bool // guarded by b.mu
}

// SampleRate implements [audio.DeviceContext].
func (c *Context) SampleRate() int { return c.rate }

// OpenInput implements [audio.DeviceContext].
func (c *Context) OpenInput(framesPerBuffer int) (audio.InputStream, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("mock: context closed")
	}
	if c.b.InputErr != nil {
		return nil, c.b.InputErr
	}
	s := &InputStream{b: c.b, closed: make(chan struct{})}
	c.b.inputs = append(c.b.inputs, s)
	c.b.openInputs++
	return s, nil
}

// OpenOutput implements [audio.DeviceContext].
func (c *Context) OpenOutput(framesPerBuffer int) (audio.OutputStream, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("mock: context closed")
	}
	s := &OutputStream{b: c.b}
	c.b.outputs = append(c.b.outputs, s)
	c.b.openOutputs++
	return s, nil
}

// Close implements [audio.DeviceContext].
func (c *Context) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.b.openContexts--
	}
	return nil
}

// ─── Streams ──────────────────────────────────────────────────────────────────

// InputStream is a mock [audio.InputStream] fed by [Backend.Push].
type InputStream struct {
	b         *Backend
	closed    chan struct{}
	closeOnce sync.Once
}

// Read implements [audio.InputStream].
func (s *InputStream) Read() ([]float32, error) {
	select {
	case <-s.closed:
		return nil, audio.ErrStreamClosed
	default:
	}
	select {
	case f := <-s.b.frames:
		return f, nil
	case <-s.closed:
		return nil, audio.ErrStreamClosed
	}
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.b.mu.Lock()
		s.b.openInputs--
		s.b.mu.Unlock()
	})
	return nil
}

// OutputStream is a mock [audio.OutputStream] that records written samples.
type OutputStream struct {
	b *Backend

	mu      sync.Mutex
	written int
	closed  bool
}

// Write implements [audio.OutputStream].
func (s *OutputStream) Write(samples []float32) error {
	s.b.mu.Lock()
	delay := s.b.WriteDelay
	s.b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	s.written += len(samples)
	return nil
}

// Close implements [audio.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.b.mu.Lock()
	s.b.openOutputs--
	s.b.mu.Unlock()
	return nil
}

// Written returns the number of samples written to the stream.
func (s *OutputStream) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

var (
	_ audio.Backend       = (*Backend)(nil)
	_ audio.DeviceContext = (*Context)(nil)
	_ audio.InputStream   = (*InputStream)(nil)
	_ audio.OutputStream  = (*OutputStream)(nil)
)
