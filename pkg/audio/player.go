package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Player plays PCM16 mono clips through the lease's output context. At most
// one clip plays at a time: starting a new clip stops the current one first.
type Player struct {
	lease  *Lease
	frames int

	// playMu serialises Play and Stop so that the stop-then-start sequence is
	// atomic with respect to other callers.
	playMu sync.Mutex

	mu      sync.Mutex
	current *playback
}

type playback struct {
	cancel  context.CancelFunc
	done    chan struct{}
	ended   sync.Once
	onEnded func()
}

// finish runs the end callback exactly once.
func (pb *playback) finish() {
	pb.ended.Do(func() {
		if pb.onEnded != nil {
			pb.onEnded()
		}
	})
}

// NewPlayer creates a player on lease. framesPerBuffer <= 0 selects 1024.
func NewPlayer(lease *Lease, framesPerBuffer int) *Player {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &Player{lease: lease, frames: framesPerBuffer}
}

// Play starts playing pcm (PCM16 LE mono at sampleRate) and returns
// immediately. onEnded, if non-nil, runs exactly once when the clip finishes
// or is stopped. Any clip already playing is stopped first.
func (p *Player) Play(pcm []byte, sampleRate int, onEnded func()) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.stopCurrent()

	dc, err := p.lease.Output()
	if err != nil {
		return err
	}
	stream, err := dc.OpenOutput(p.frames)
	if err != nil {
		return fmt.Errorf("audio: open playback stream: %w", err)
	}

	samples := PCM16ToFloat32(ResampleMono16(pcm, sampleRate, dc.SampleRate()))
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{cancel: cancel, done: make(chan struct{}), onEnded: onEnded}

	p.mu.Lock()
	p.current = pb
	p.mu.Unlock()

	go p.run(ctx, pb, stream, samples)
	return nil
}

func (p *Player) run(ctx context.Context, pb *playback, stream OutputStream, samples []float32) {
	for off := 0; off < len(samples) && ctx.Err() == nil; off += p.frames {
		end := min(off+p.frames, len(samples))
		if err := stream.Write(samples[off:end]); err != nil {
			slog.Warn("audio playback write failed", "err", err)
			break
		}
	}
	if err := stream.Close(); err != nil {
		slog.Debug("audio playback close failed", "err", err)
	}

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
	}
	p.mu.Unlock()

	// done closes before the callback so a callback that starts the next clip
	// does not wait on itself.
	close(pb.done)
	pb.finish()
}

// Stop halts the current clip, if any, and waits for its stream to close.
func (p *Player) Stop() {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.stopCurrent()
}

func (p *Player) stopCurrent() {
	p.mu.Lock()
	pb := p.current
	p.current = nil
	p.mu.Unlock()
	if pb == nil {
		return
	}
	pb.cancel()
	<-pb.done
}

// Active reports whether a clip is currently playing.
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
