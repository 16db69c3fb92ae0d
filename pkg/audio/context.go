package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// ContextManager owns the input and output device contexts shared by one
// session at a time. Contexts are created lazily through a [Lease] and closed
// when the lease is released, so nothing survives between sessions.
//
// Only one lease may be outstanding. Acquiring while a lease is held returns
// [ErrContextLeaked]; this catches teardown paths that forget to release.
type ContextManager struct {
	backend    Backend
	inputRate  int
	outputRate int

	mu     sync.Mutex
	leased bool
	input  DeviceContext
	output DeviceContext
}

// ManagerOption is a functional option for [NewContextManager].
type ManagerOption func(*ContextManager)

// WithInputRate overrides the capture context rate (default 16 kHz).
func WithInputRate(hz int) ManagerOption {
	return func(m *ContextManager) { m.inputRate = hz }
}

// WithOutputRate overrides the playback context rate (default 24 kHz).
func WithOutputRate(hz int) ManagerOption {
	return func(m *ContextManager) { m.outputRate = hz }
}

// NewContextManager creates a manager on top of backend.
func NewContextManager(backend Backend, opts ...ManagerOption) *ContextManager {
	m := &ContextManager{
		backend:    backend,
		inputRate:  DefaultInputRate,
		outputRate: DefaultOutputRate,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire hands out the manager's single lease.
func (m *ContextManager) Acquire() (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leased || m.input != nil || m.output != nil {
		return nil, ErrContextLeaked
	}
	m.leased = true
	return &Lease{m: m}, nil
}

// Active returns the number of currently open device contexts (0–2).
func (m *ContextManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	if m.input != nil {
		n++
	}
	if m.output != nil {
		n++
	}
	return n
}

// Leased reports whether a lease is currently outstanding.
func (m *ContextManager) Leased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leased
}

// Lease grants access to the manager's contexts until [Lease.Release].
type Lease struct {
	m        *ContextManager
	released bool // guarded by m.mu
}

// Input returns the capture context, creating it on first use.
func (l *Lease) Input() (DeviceContext, error) {
	return l.get(&l.m.input, l.m.inputRate)
}

// Output returns the playback context, creating it on first use.
func (l *Lease) Output() (DeviceContext, error) {
	return l.get(&l.m.output, l.m.outputRate)
}

func (l *Lease) get(slot *DeviceContext, rate int) (DeviceContext, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.released {
		return nil, ErrLeaseReleased
	}
	if *slot != nil {
		return *slot, nil
	}
	dc, err := l.m.backend.NewContext(rate)
	if err != nil {
		return nil, fmt.Errorf("audio: open %d Hz context: %w", rate, err)
	}
	slog.Debug("audio context opened", "sample_rate", rate)
	*slot = dc
	return dc, nil
}

// Release closes both contexts and returns the lease to the manager. It is
// idempotent; close errors are logged.
func (l *Lease) Release() {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	for _, slot := range []*DeviceContext{&l.m.input, &l.m.output} {
		if *slot == nil {
			continue
		}
		if err := (*slot).Close(); err != nil {
			slog.Warn("audio context close failed", "sample_rate", (*slot).SampleRate(), "err", err)
		}
		*slot = nil
	}
	l.m.leased = false
}
