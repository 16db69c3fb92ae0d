package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/live"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ctx context.Context, entry ProviderEntry) (T, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]Factory[llm.Provider]
	live  map[string]Factory[live.Provider]
	tts   map[string]Factory[tts.Synthesizer]
	audio map[string]Factory[audio.Backend]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]Factory[llm.Provider]),
		live:  make(map[string]Factory[live.Provider]),
		tts:   make(map[string]Factory[tts.Synthesizer]),
		audio: make(map[string]Factory[audio.Backend]),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	register(r, r.llm, name, f)
}

// RegisterLive registers a live channel provider factory under name.
func (r *Registry) RegisterLive(name string, f Factory[live.Provider]) {
	register(r, r.live, name, f)
}

// RegisterTTS registers a speech synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Synthesizer]) {
	register(r, r.tts, name, f)
}

// RegisterAudio registers an audio backend factory under name.
func (r *Registry) RegisterAudio(name string, f Factory[audio.Backend]) {
	register(r, r.audio, name, f)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(ctx context.Context, entry ProviderEntry) (llm.Provider, error) {
	return create(ctx, r, r.llm, "llm", entry)
}

// CreateLive instantiates a live channel provider using the factory registered under entry.Name.
func (r *Registry) CreateLive(ctx context.Context, entry ProviderEntry) (live.Provider, error) {
	return create(ctx, r, r.live, "live", entry)
}

// CreateTTS instantiates a speech synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(ctx context.Context, entry ProviderEntry) (tts.Synthesizer, error) {
	return create(ctx, r, r.tts, "tts", entry)
}

// CreateAudio instantiates an audio backend by name.
func (r *Registry) CreateAudio(ctx context.Context, name string) (audio.Backend, error) {
	return create(ctx, r, r.audio, "audio", ProviderEntry{Name: name})
}

// Names returns the registered names for kind ("llm", "live", "tts" or "audio").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		names = keys(r.llm)
	case "live":
		names = keys(r.live)
	case "tts":
		names = keys(r.tts)
	case "audio":
		names = keys(r.audio)
	}
	return names
}

func register[T any](r *Registry, m map[string]Factory[T], name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = f
}

func create[T any](ctx context.Context, r *Registry, m map[string]Factory[T], kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(ctx, entry)
}

func keys[T any](m map[string]Factory[T]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
