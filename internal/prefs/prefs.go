// Package prefs persists the learner's practice preferences.
//
// Missing or unreadable data never fails a read: [Store.Load] falls back to
// [Defaults] and logs a warning.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/parley/internal/store"
)

// Speech rate bounds accepted by [Store.SetSpeechRate].
const (
	MinSpeechRate = 0.5
	MaxSpeechRate = 2.0
)

const key = "userPreferences"

// Preferences is the learner's profile.
type Preferences struct {
	// Language is the practice language; empty until chosen.
	Language           string   `json:"language"`
	Goals              []string `json:"goals"`
	Level              string   `json:"level"`
	SpeechRate         float64  `json:"speechRate"`
	OnboardingComplete bool     `json:"isOnboardingComplete"`
	QuickStartComplete bool     `json:"isQuickStartComplete"`
}

// Defaults returns the preferences of a new learner.
func Defaults() Preferences {
	return Preferences{Goals: []string{}, Level: "Beginner", SpeechRate: 1.0}
}

// Store reads and writes [Preferences] in a [store.KV].
type Store struct {
	mu  sync.Mutex
	kv  store.KV
	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store over kv.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{kv: kv, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the stored preferences, or [Defaults] when nothing usable
// is stored.
func (s *Store) Load(ctx context.Context) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) Preferences {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults()
	}
	if err != nil {
		s.log.Warn("prefs: read failed, using defaults", "err", err)
		return Defaults()
	}
	p := Defaults()
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn("prefs: stored preferences are corrupt, using defaults", "err", err)
		return Defaults()
	}
	if p.Goals == nil {
		p.Goals = []string{}
	}
	if p.SpeechRate == 0 {
		p.SpeechRate = 1.0
	}
	p.SpeechRate = clampRate(p.SpeechRate)
	return p
}

// update applies fn to the current preferences and persists the result.
func (s *Store) update(ctx context.Context, fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.load(ctx)
	fn(&p)
	data, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	if err := s.kv.Put(ctx, key, string(data)); err != nil {
		return p, err
	}
	return p, nil
}

// SetLanguage records the practice language.
func (s *Store) SetLanguage(ctx context.Context, language string) (Preferences, error) {
	return s.update(ctx, func(p *Preferences) { p.Language = language })
}

// SetInitialPreferences records goals and level and marks onboarding done.
func (s *Store) SetInitialPreferences(ctx context.Context, goals []string, level string) (Preferences, error) {
	return s.update(ctx, func(p *Preferences) {
		p.Goals = append([]string{}, goals...)
		p.Level = level
		p.OnboardingComplete = true
	})
}

// SetSpeechRate records the playback rate, clamped to [MinSpeechRate, MaxSpeechRate].
func (s *Store) SetSpeechRate(ctx context.Context, rate float64) (Preferences, error) {
	return s.update(ctx, func(p *Preferences) { p.SpeechRate = clampRate(rate) })
}

// CompleteQuickStart marks the quick-start walkthrough as done.
func (s *Store) CompleteQuickStart(ctx context.Context) (Preferences, error) {
	return s.update(ctx, func(p *Preferences) { p.QuickStartComplete = true })
}

func clampRate(r float64) float64 {
	return min(max(r, MinSpeechRate), MaxSpeechRate)
}
