package audio

import "time"

// Default sample rates. The live channel expects 16 kHz input; synthesised
// speech arrives at 24 kHz.
const (
	DefaultInputRate  = 16000
	DefaultOutputRate = 24000

	// DefaultFramesPerBuffer is the capture block size in samples.
	DefaultFramesPerBuffer = 4096
)

// AudioFrame is one captured block of microphone audio, already encoded as
// PCM16 little-endian mono.
type AudioFrame struct {
	// Data holds PCM16 LE samples.
	Data []byte

	// SampleRate in Hz (16000 for live-channel input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to recording start.
	Timestamp time.Duration
}

// Samples returns the number of samples in the frame.
func (f AudioFrame) Samples() int { return len(f.Data) / 2 }
