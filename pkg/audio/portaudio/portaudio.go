// Package portaudio implements [audio.Backend] on the host's default audio
// devices via PortAudio.
//
// Each device context holds one PortAudio initialisation; PortAudio counts
// Initialize/Terminate pairs, so input and output contexts may coexist.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/parley/pkg/audio"
)

// Backend opens contexts on the default host API.
type Backend struct{}

// New returns a PortAudio backend.
func New() *Backend { return &Backend{} }

// NewContext implements [audio.Backend].
func (*Backend) NewContext(sampleRate int) (audio.DeviceContext, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &deviceContext{rate: sampleRate}, nil
}

type deviceContext struct {
	rate      int
	closeOnce sync.Once
	closeErr  error
}

func (c *deviceContext) SampleRate() int { return c.rate }

func (c *deviceContext) OpenInput(framesPerBuffer int) (audio.InputStream, error) {
	s := &inputStream{buf: make([]float32, framesPerBuffer)}
	stream, err := pa.OpenDefaultStream(1, 0, float64(c.rate), framesPerBuffer, &s.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start capture: %v", audio.ErrPermissionDenied, err)
	}
	s.stream = stream
	return s, nil
}

func (c *deviceContext) OpenOutput(framesPerBuffer int) (audio.OutputStream, error) {
	s := &outputStream{buf: make([]float32, framesPerBuffer)}
	stream, err := pa.OpenDefaultStream(0, 1, float64(c.rate), framesPerBuffer, &s.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start playback: %w", err)
	}
	s.stream = stream
	return s, nil
}

func (c *deviceContext) Close() error {
	c.closeOnce.Do(func() {
		if err := pa.Terminate(); err != nil {
			c.closeErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return c.closeErr
}

// ─── Streams ──────────────────────────────────────────────────────────────────

// inputStream serialises Read and Close with mu: a blocking read completes
// within one buffer period, after which Close can stop the stream safely.
type inputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []float32
	closed bool
}

func (s *inputStream) Read() ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, audio.ErrStreamClosed
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeStream(s.stream)
}

type outputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []float32
	closed bool
}

func (s *outputStream) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeStream(s.stream)
}

func closeStream(stream *pa.Stream) error {
	stopErr := stream.Stop()
	if err := stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	if stopErr != nil {
		return fmt.Errorf("portaudio: stop stream: %w", stopErr)
	}
	return nil
}

var _ audio.Backend = (*Backend)(nil)
