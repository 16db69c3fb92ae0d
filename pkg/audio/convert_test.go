package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFloat32ToPCM16(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.Float32ToPCM16([]float32{0, 1, -1, 0.5, -0.5, 2, -3}))
	want := []int16{0, math.MaxInt16, math.MinInt16, 16383, -16384, math.MaxInt16, math.MinInt16}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	t.Parallel()

	got := audio.PCM16ToFloat32(samplesToBytes([]int16{0, math.MinInt16, 16384}))
	want := []float32{0, -1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// Odd trailing byte is dropped.
	if n := len(audio.PCM16ToFloat32([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd input: got %d samples, want 1", n)
	}
}

func TestFrameLength(t *testing.T) {
	t.Parallel()

	pcm := audio.Float32ToPCM16(make([]float32, audio.DefaultFramesPerBuffer))
	if len(pcm) != 8192 {
		t.Errorf("4096-sample frame encodes to %d bytes, want 8192", len(pcm))
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 24000, 24000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 1000, 2000, 3000})
	out := bytesToSamples(audio.ResampleMono16(pcm, 16000, 24000))
	if len(out) != 6 {
		t.Fatalf("got %d samples, want 6", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample = %d, want 0", out[0])
	}
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("ramp not monotonic at %d: %v", i, out)
		}
	}
}

func TestResampleMono16_InvalidRates(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, 2})
	if got := audio.ResampleMono16(pcm, 0, 16000); len(got) != len(pcm) {
		t.Error("zero source rate should return input unchanged")
	}
}
