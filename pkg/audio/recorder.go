package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Recorder captures microphone audio in fixed-size frames. Captured audio is
// only ever handed to the frame callback; it is never routed to an output
// device.
type Recorder struct {
	lease  *Lease
	frames int

	mu     sync.Mutex
	stream InputStream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder that captures through lease's input
// context. framesPerBuffer <= 0 selects [DefaultFramesPerBuffer].
func NewRecorder(lease *Lease, framesPerBuffer int) *Recorder {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Recorder{lease: lease, frames: framesPerBuffer}
}

// CheckPermission opens and immediately tears down a capture stream. It
// returns an error wrapping [ErrPermissionDenied] if the microphone cannot be
// used.
func (r *Recorder) CheckPermission() error {
	stream, err := r.open()
	if err != nil {
		return err
	}
	return stream.Close()
}

func (r *Recorder) open() (InputStream, error) {
	dc, err := r.lease.Input()
	if err != nil {
		return nil, err
	}
	stream, err := dc.OpenInput(r.frames)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return stream, nil
}

// Start begins capture and calls onFrame from a dedicated goroutine for every
// block read. Calling Start while already recording is a no-op. Capture stops
// when ctx is cancelled or [Recorder.Stop] is called.
func (r *Recorder) Start(ctx context.Context, onFrame func(AudioFrame)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return nil
	}
	stream, err := r.open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.stream = stream
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, stream, onFrame, r.done)
	return nil
}

func (r *Recorder) loop(ctx context.Context, stream InputStream, onFrame func(AudioFrame), done chan struct{}) {
	defer close(done)
	rate := DefaultInputRate
	if dc, err := r.lease.Input(); err == nil {
		rate = dc.SampleRate()
	}
	start := time.Now()
	for {
		samples, err := stream.Read()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, ErrStreamClosed) {
				slog.Warn("audio capture read failed", "err", err)
			}
			return
		}
		onFrame(AudioFrame{
			Data:       Float32ToPCM16(samples),
			SampleRate: rate,
			Timestamp:  time.Since(start),
		})
	}
}

// Stop ends capture, waits for the capture goroutine to exit and releases the
// microphone. Calling Stop while not recording is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	stream, cancel, done := r.stream, r.cancel, r.done
	r.stream, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if stream == nil {
		return nil
	}
	cancel()
	err := stream.Close()
	<-done
	if err != nil {
		return fmt.Errorf("audio: close capture stream: %w", err)
	}
	return nil
}

// Recording reports whether capture is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}
