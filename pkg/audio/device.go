// Package audio provides the local audio I/O used by a practice session:
// microphone capture at the live channel's input rate, playback of
// synthesised speech, and the lifecycle of the underlying device contexts.
//
// The three main pieces are:
//
//   - [ContextManager] owns at most one input and one output [DeviceContext]
//     and hands them out through a single outstanding [Lease].
//   - [Recorder] captures fixed-size frames and delivers them as PCM16.
//   - [Player] plays one PCM16 clip at a time.
//
// Hardware access goes through a [Backend]; audio/portaudio talks to real
// devices and audio/mock is used in tests.
package audio

import "errors"

var (
	// ErrPermissionDenied reports that microphone access was refused or no
	// capture device is available.
	ErrPermissionDenied = errors.New("audio: microphone access denied")

	// ErrContextLeaked is returned by [ContextManager.Acquire] when the
	// previous lease was never released.
	ErrContextLeaked = errors.New("audio: previous audio contexts were not released")

	// ErrLeaseReleased is returned when a released [Lease] is used again.
	ErrLeaseReleased = errors.New("audio: lease already released")

	// ErrStreamClosed is returned by stream reads and writes after Close.
	ErrStreamClosed = errors.New("audio: stream closed")
)

// Backend creates device contexts. Implementations must be safe for
// concurrent use.
type Backend interface {
	// NewContext opens a device context running at sampleRate Hz.
	NewContext(sampleRate int) (DeviceContext, error)
}

// DeviceContext is an open audio engine at a fixed sample rate.
type DeviceContext interface {
	// SampleRate returns the context's rate in Hz.
	SampleRate() int

	// OpenInput opens the default microphone for mono capture in blocks of
	// framesPerBuffer samples. Refused or missing devices yield an error
	// wrapping [ErrPermissionDenied].
	OpenInput(framesPerBuffer int) (InputStream, error)

	// OpenOutput opens the default speaker for mono playback.
	OpenOutput(framesPerBuffer int) (OutputStream, error)

	// Close releases the context. Streams opened from it must be closed first.
	Close() error
}

// InputStream is an open capture stream.
type InputStream interface {
	// Read blocks until one block of samples is available and returns it.
	// The returned slice is owned by the caller. After Close, Read returns
	// [ErrStreamClosed].
	Read() ([]float32, error)

	// Close stops capture and releases the device. It unblocks a pending
	// Read and is safe to call more than once.
	Close() error
}

// OutputStream is an open playback stream.
type OutputStream interface {
	// Write blocks until samples have been queued to the device.
	Write(samples []float32) error

	// Close stops playback and releases the device. Safe to call more than once.
	Close() error
}
