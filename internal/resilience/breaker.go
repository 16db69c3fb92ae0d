// Package resilience provides a circuit breaker and ordered provider
// failover for the coach's remote models.
//
// [Breaker] is a three-state breaker (closed, open, half-open). [Chain]
// pairs a primary provider and its fallbacks with one breaker each, so a
// backend that keeps failing is skipped until its cooldown has passed.
// [LLM] and [Speech] wrap a chain in the llm and tts contracts.
//
// Context cancellation is never counted as a provider failure: a practice
// attempt that is closed mid-call must not trip the breaker for the next one.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown ends.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. One failed
	// probe re-opens the breaker; enough successful ones close it.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted.
type BreakerConfig struct {
	// Name labels the breaker in log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls that close the
	// breaker again. Default: 1.
	Probes int

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	cfg BreakerConfig
	log *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int // half-open probes running
	passed   int // half-open probes succeeded
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, log: slog.Default().With("breaker", cfg.Name)}
}

// Do runs fn unless the breaker is open. fn's error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state, b.inFlight, b.passed = StateHalfOpen, 0, 0
		b.log.Info("resilience: breaker half-open")
		fallthrough
	case StateHalfOpen:
		if b.inFlight+b.passed >= b.cfg.Probes {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.inFlight--
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen)) {
		return
	}

	switch {
	case err == nil && probe:
		b.passed++
		if b.passed >= b.cfg.Probes && b.state == StateHalfOpen {
			b.state, b.failures = StateClosed, 0
			b.log.Info("resilience: breaker closed")
		}
	case err == nil:
		b.failures = 0
	case probe:
		b.trip()
	default:
		b.failures++
		if b.failures >= b.cfg.MaxFailures && b.state == StateClosed {
			b.trip()
		}
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.log.Warn("resilience: breaker opened", "consecutive_failures", b.failures)
}

// State returns the current state. An open breaker whose cooldown has
// passed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, b.failures, b.inFlight, b.passed = StateClosed, 0, 0, 0
}
