package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider in a [Chain] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is a primary provider followed by fallbacks, tried in order.
// Build it with [NewChain] and [Chain.Add] before first use.
type Chain[T any] struct {
	cfg   BreakerConfig
	links []link[T]
}

// NewChain returns a chain whose first entry is primary. cfg is the
// template for every entry's breaker; its Name is replaced per entry.
func NewChain[T any](name string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback.
func (c *Chain[T]) Add(name string, fallback T) {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{name: name, value: fallback, breaker: NewBreaker(cfg)})
}

// Len returns the number of entries including the primary.
func (c *Chain[T]) Len() int { return len(c.links) }

// States returns each entry's breaker state keyed by name.
func (c *Chain[T]) States() map[string]State {
	out := make(map[string]State, len(c.links))
	for _, l := range c.links {
		out[l.name] = l.breaker.State()
	}
	return out
}

// Call runs fn against each entry until one succeeds. It stops early when
// ctx is done, returning the context error rather than trying the rest.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range c.links {
		l := &c.links[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := l.breaker.Do(func() error {
			var err error
			out, err = fn(ctx, l.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Info("resilience: served by fallback", "provider", l.name)
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider", "provider", l.name, "reason", "circuit open")
		} else {
			slog.Warn("resilience: provider failed", "provider", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
