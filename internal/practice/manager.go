package practice

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/parley/pkg/scenario"
)

// Key identifies the inputs a session was built from. A session is reused
// only while its key is unchanged.
type Key struct {
	ScenarioID  string
	Fingerprint string
	Language    string
	Level       string
	SpeechRate  float64
}

// KeyFor derives the session key for sc and st.
func KeyFor(sc *scenario.Scenario, st Settings) Key {
	return Key{
		ScenarioID:  sc.ID,
		Fingerprint: sc.Fingerprint(),
		Language:    st.Language,
		Level:       st.Level,
		SpeechRate:  st.SpeechRate,
	}
}

// Manager holds at most one live [Session]. Opening a different key, retrying
// or closing tears the current session down completely, including its audio
// lease, before anything new is built.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	cur      *Session
	key      Key
	sc       *scenario.Scenario
	settings Settings
}

// NewManager creates a manager that builds sessions from deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Open returns a started session for sc and st. The current session is
// returned as is when its key matches; otherwise it is closed and replaced.
func (m *Manager) Open(ctx context.Context, sc *scenario.Scenario, st Settings) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := KeyFor(sc, st)
	if m.cur != nil && m.key == key {
		return m.cur, nil
	}
	return m.rebuildLocked(ctx, sc, st, key)
}

// Retry rebuilds the current session from scratch with the same inputs. A
// session that had switched to text input is retried in text mode.
func (m *Manager) Retry(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sc == nil {
		return nil, ErrNoSession
	}
	return m.rebuildLocked(ctx, m.sc, m.carriedSettingsLocked(), m.key)
}

// CustomizePersona rebuilds the current session around a rewritten persona.
// The override changes the scenario fingerprint, so the running attempt is
// torn down and a fresh one starts from the opening line.
func (m *Manager) CustomizePersona(ctx context.Context, persona string) (*Session, error) {
	persona = strings.TrimSpace(persona)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sc == nil {
		return nil, ErrNoSession
	}
	if persona == "" {
		return nil, ErrEmptyPersona
	}
	if m.cur != nil && persona == m.sc.Persona {
		return m.cur, nil
	}
	sc := m.sc.Clone()
	sc.Persona = persona
	st := m.carriedSettingsLocked()
	return m.rebuildLocked(ctx, &sc, st, KeyFor(&sc, st))
}

func (m *Manager) carriedSettingsLocked() Settings {
	st := m.settings
	if m.cur != nil && m.cur.Snapshot().TextInput {
		st.TextInput = true
	}
	return st
}

func (m *Manager) rebuildLocked(ctx context.Context, sc *scenario.Scenario, st Settings, key Key) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cur != nil {
		if err := m.cur.Close(); err != nil {
			m.cur.log.Warn("teardown before rebuild", "err", err)
		}
		m.cur = nil
	}
	s, err := NewSession(sc, st, m.deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, err
	}
	m.cur, m.key, m.sc, m.settings = s, key, sc, st
	return s, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Close tears down the current session, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	err := m.cur.Close()
	m.cur = nil
	return err
}
