// Package mock provides a test double for the live.Provider interface.
//
// Provider records every Open call and hands out [Session] values that
// track their own sent frames and close state. Tests drive remote events
// through [Session.Transcribe], [Session.CompleteTurn] and [Session.Drop].
//
// Example:
//
//	p := &mock.Provider{}
//	sess, _ := p.Open(ctx, cfg, handlers)
//	p.Last().Transcribe("hello")
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/live"
)

// ErrClosed is returned by SendAudio after Close.
var ErrClosed = errors.New("mock: session closed")

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned from Open instead of a session.
	OpenErr error

	// SendErr, if non-nil, is returned from every SendAudio call.
	SendErr error

	// OpenCalls records the config of every Open call in order.
	OpenCalls []live.SessionConfig

	sessions []*Session
}

// Open implements live.Provider.
func (p *Provider) Open(_ context.Context, cfg live.SessionConfig, h live.Handlers) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, cfg)
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	s := &Session{handlers: h, sendErr: p.SendErr}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Sessions returns every session opened so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently opened session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// OpenSessions returns how many sessions are open right now.
func (p *Provider) OpenSessions() int {
	p.mu.Lock()
	sessions := append([]*Session(nil), p.sessions...)
	p.mu.Unlock()
	n := 0
	for _, s := range sessions {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Session is a mock implementation of live.Session.
type Session struct {
	mu         sync.Mutex
	handlers   live.Handlers
	sendErr    error
	frames     [][]byte
	closed     bool
	closeCalls int
	closeOnce  sync.Once
}

// SendAudio implements live.Session.
func (s *Session) SendAudio(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

// Close implements live.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCalls++
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.notifyClose(nil)
	}
	return nil
}

func (s *Session) notifyClose(err error) {
	s.closeOnce.Do(func() {
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(err)
		}
	})
}

// Transcribe delivers a transcription fragment as if it came from the remote side.
func (s *Session) Transcribe(fragment string) {
	if s.handlers.OnTranscription != nil && !s.Closed() {
		s.handlers.OnTranscription(fragment)
	}
}

// CompleteTurn delivers a remote turn-complete signal.
func (s *Session) CompleteTurn() {
	if s.handlers.OnTurnComplete != nil && !s.Closed() {
		s.handlers.OnTurnComplete()
	}
}

// Drop simulates the remote side failing with err.
func (s *Session) Drop(err error) {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.notifyClose(err)
	}
}

// Frames returns copies of every frame sent.
func (s *Session) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)
