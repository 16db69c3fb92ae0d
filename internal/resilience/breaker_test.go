package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, Cooldown: time.Minute, Now: clk.Now})

	for i := range 3 {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if s := b.State(); s != StateOpen {
		t.Fatalf("state = %s, want open", s)
	}

	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker ran fn")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{MaxFailures: 2})
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	if s := b.State(); s != StateClosed {
		t.Errorf("state = %s, want closed", s)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"probe succeeds", succeed, StateClosed},
		{"probe fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute, Now: clk.Now})
			_ = b.Do(fail)

			clk.Advance(time.Minute)
			if s := b.State(); s != StateHalfOpen {
				t.Fatalf("state after cooldown = %s, want half-open", s)
			}
			_ = b.Do(tt.probe)
			if s := b.State(); s != tt.want {
				t.Errorf("state = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second, Now: clk.Now})
	_ = b.Do(fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if s := b.State(); s != StateClosed {
		t.Errorf("state = %s, want closed", s)
	}
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{MaxFailures: 1})
	canceled := fmt.Errorf("feedback: %w", context.Canceled)
	for range 5 {
		_ = b.Do(func() error { return canceled })
	}
	if s := b.State(); s != StateClosed {
		t.Errorf("state = %s, want closed", s)
	}

	// Deadlines are provider failures.
	_ = b.Do(func() error { return context.DeadlineExceeded })
	if s := b.State(); s != StateOpen {
		t.Errorf("state after timeout = %s, want open", s)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{MaxFailures: 1})
	_ = b.Do(fail)
	b.Reset()
	if s := b.State(); s != StateClosed {
		t.Errorf("state = %s, want closed", s)
	}
	if err := b.Do(succeed); err != nil {
		t.Errorf("Do after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
