// Package practice runs one guided practice attempt: it owns the live
// channel, the audio lease and the turn state machine, and exposes a
// snapshot-and-wait API to whatever front end drives it.
//
// # Lifecycle
//
// A [Session] is created by [NewSession] (which acquires the exclusive audio
// lease), started with [Session.Start] and torn down with [Session.Close].
// Every asynchronous continuation is bound to the session's attempt context;
// once Close cancels it, late callbacks are dropped without touching state.
// [Manager] holds at most one session and rebuilds it on retry or when the
// scenario, language, level or speech rate changes.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/progress"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/live"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/scenario"
)

const (
	// DefaultTranscriptionGrace is how long to wait after recording stops
	// for trailing transcription fragments.
	DefaultTranscriptionGrace = 1500 * time.Millisecond

	// DefaultSpeechTimeout bounds a single speech synthesis request.
	DefaultSpeechTimeout = 15 * time.Second

	// ClarifyLine is spoken when a turn is submitted with no words in it.
	ClarifyLine = "I didn't catch that. Please try speaking again."
)

// Coach scores turns and writes the persona's lines. Implemented by
// *coach.Service.
type Coach interface {
	TurnFeedback(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language string) (scenario.TurnFeedback, error)
	FinalAssessment(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language string) (scenario.Scorecard, error)
	NextLine(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language, level string) (string, error)
	OpeningLine(ctx context.Context, sc *scenario.Scenario, language string) string
}

// Ledger records passed scenarios. Implemented by *progress.Ledger.
type Ledger interface {
	RecordCompletion(ctx context.Context, card scenario.Scorecard, sc *scenario.Scenario) ([]progress.Achievement, error)
}

// Settings are the learner choices a session is built for.
type Settings struct {
	Language   string
	Level      string
	SpeechRate float64

	// TextInput starts the session in text mode: no microphone probe and no
	// live channel.
	TextInput bool
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Live   live.Provider
	Audio  *audio.ContextManager
	Coach  Coach
	Speech tts.Synthesizer // optional; nil disables spoken lines
	Ledger Ledger          // optional

	Metrics *observe.Metrics
	Logger  *slog.Logger

	TranscriptionGrace time.Duration
	SpeechTimeout      time.Duration
	FramesPerBuffer    int
}

func (d *Deps) defaults() error {
	switch {
	case d.Live == nil:
		return errors.New("practice: live provider is required")
	case d.Audio == nil:
		return errors.New("practice: audio context manager is required")
	case d.Coach == nil:
		return errors.New("practice: coach is required")
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TranscriptionGrace <= 0 {
		d.TranscriptionGrace = DefaultTranscriptionGrace
	}
	if d.SpeechTimeout <= 0 {
		d.SpeechTimeout = DefaultSpeechTimeout
	}
	return nil
}

// Snapshot is a consistent, caller-owned view of a session.
type Snapshot struct {
	ID         string
	ScenarioID string
	Version    uint64

	Status            Status
	Transcript        []scenario.TranscriptLine
	LiveTranscription string
	Turn              int
	MaxTurns          int

	Feedback        *scenario.TurnFeedback
	Scorecard       *scenario.Scorecard
	Passed          bool
	NewAchievements []progress.Achievement

	// Notice is a transient informational message, e.g. [ClarifyLine].
	Notice string
	Err    *Error

	TextInput bool
}

// CanRecord reports whether a voice turn may start.
func (s Snapshot) CanRecord() bool { return !s.TextInput && s.Status.AcceptsInput() }

// CanSubmitText reports whether a typed turn may be submitted.
func (s Snapshot) CanSubmitText() bool { return s.Status.AcceptsInput() }

// Session is one practice attempt. All methods are safe for concurrent use.
type Session struct {
	id       string
	sc       *scenario.Scenario
	settings Settings
	deps     Deps
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lease     *audio.Lease
	recorder  *audio.Recorder
	player    *audio.Player
	transport *Transport

	mu           sync.Mutex
	changed      chan struct{}
	version      uint64
	started      bool
	closed       bool
	status       Status
	transcript   []scenario.TranscriptLine
	turn         int
	feedback     *scenario.TurnFeedback
	scorecard    *scenario.Scorecard
	passed       bool
	achievements []progress.Achievement
	notice       string
	err          *Error
	textInput    bool
	sealed       bool
	listeners    []func(Snapshot)

	closeOnce sync.Once
	closeErr  error
}

// NewSession validates the scenario and acquires the audio lease. It fails
// with an error wrapping [audio.ErrContextLeaked] if another session still
// holds the lease.
func NewSession(sc *scenario.Scenario, st Settings, deps Deps) (*Session, error) {
	if err := deps.defaults(); err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, errors.New("practice: scenario is required")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	lease, err := deps.Audio.Acquire()
	if err != nil {
		return nil, fmt.Errorf("practice: acquire audio: %w", err)
	}

	id := uuid.NewString()
	log := deps.Logger.With("session_id", id, "scenario", sc.ID)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		sc:        sc,
		settings:  st,
		deps:      deps,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		lease:     lease,
		recorder:  audio.NewRecorder(lease, deps.FramesPerBuffer),
		player:    audio.NewPlayer(lease, deps.FramesPerBuffer),
		transport: NewTransport(deps.Live, deps.Metrics, log),
		changed:   make(chan struct{}),
		status:    StatusInitializing,
		turn:      1,
		textInput: st.TextInput,
	}
	deps.Metrics.ActiveSessions.Add(ctx, 1)
	return s, nil
}

// ID returns the attempt's unique identifier.
func (s *Session) ID() string { return s.id }

// Scenario returns the scenario being practised.
func (s *Session) Scenario() *scenario.Scenario { return s.sc }

// Settings returns the learner settings the session was built for.
func (s *Session) Settings() Settings { return s.settings }

// Transport exposes the live channel adapter.
func (s *Session) Transport() *Transport { return s.transport }

// OnChange registers fn to receive a snapshot after every state change. fn
// runs without the session lock held and must not block for long.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Start begins the attempt in the background: probe the microphone, open the
// live channel, then speak the opening line. Calling Start twice is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.goAsync(s.begin)
	return nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                s.id,
		ScenarioID:        s.sc.ID,
		Version:           s.version,
		Status:            s.status,
		Transcript:        append([]scenario.TranscriptLine(nil), s.transcript...),
		LiveTranscription: s.transport.Snapshot(),
		Turn:              s.turn,
		MaxTurns:          s.sc.MaxTurns,
		Passed:            s.passed,
		NewAchievements:   append([]progress.Achievement(nil), s.achievements...),
		Notice:            s.notice,
		Err:               s.err,
		TextInput:         s.textInput,
	}
	if s.feedback != nil {
		fb := *s.feedback
		snap.Feedback = &fb
	}
	if s.scorecard != nil {
		card := *s.scorecard
		card.Strengths = append([]string(nil), card.Strengths...)
		card.AreasForImprovement = append([]string(nil), card.AreasForImprovement...)
		card.CriteriaScores = append([]scenario.CriterionScore(nil), card.CriteriaScores...)
		snap.Scorecard = &card
	}
	return snap
}

// Wait blocks until cond holds for the current snapshot or ctx is done.
func (s *Session) Wait(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		s.mu.Lock()
		snap := s.snapshotLocked()
		ch := s.changed
		s.mu.Unlock()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// WaitStatus blocks until the session reaches one of want.
func (s *Session) WaitStatus(ctx context.Context, want ...Status) (Snapshot, error) {
	return s.Wait(ctx, func(snap Snapshot) bool {
		for _, w := range want {
			if snap.Status == w {
				return true
			}
		}
		return false
	})
}

// ── State mutation ────────────────────────────────────────────────────────────

// update runs fn under the lock when the attempt is still live, then
// publishes the change. It reports false, without running fn, once the
// session is closed.
func (s *Session) update(fn func() error) (bool, error) {
	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	err := fn()
	snap, listeners := s.bumpLocked()
	s.mu.Unlock()
	s.publish(snap, listeners)
	return true, err
}

func (s *Session) bumpLocked() (Snapshot, []func(Snapshot)) {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	return s.snapshotLocked(), slices.Clone(s.listeners)
}

func (s *Session) publish(snap Snapshot, listeners []func(Snapshot)) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// setStatusLocked applies a validated transition.
func (s *Session) setStatusLocked(to Status) error {
	if s.status == to {
		return nil
	}
	if !canTransition(s.status, to) {
		return invalidTransition(s.status, to)
	}
	s.log.Debug("status change", "from", s.status, "to", to)
	s.status = to
	s.deps.Metrics.RecordTransition(s.ctx, string(to))
	return nil
}

// transition moves to the given status if the attempt is still live.
func (s *Session) transition(to Status) bool {
	ok, err := s.update(func() error { return s.setStatusLocked(to) })
	if err != nil && ok {
		s.log.Error("rejected status change", "err", err)
		return false
	}
	return ok
}

// fail records e and moves to its status. Failures on a terminal, sealed or
// closed session are dropped.
func (s *Session) fail(e *Error) {
	applied := false
	_, _ = s.update(func() error {
		if s.status.Terminal() || s.sealed {
			return nil
		}
		applied = true
		s.err = e
		return s.setStatusLocked(e.Status())
	})
	if !applied {
		return
	}
	s.log.Warn("practice step failed", "op", e.Op, "kind", e.Kind, "err", e.Err)
	s.goAsync(func() {
		_ = s.recorder.Stop()
		s.player.Stop()
	})
}

// inStatus reports whether the attempt is live and still in want. A step
// checks it after every remote call: a failure or teardown in the meantime
// moved the session on and the result must be discarded.
func (s *Session) inStatus(want Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.ctx.Err() == nil && s.status == want
}

// advance runs fn and publishes the change only while the attempt is live
// and still in want. It reports false when fn did not run or its transition
// was rejected.
func (s *Session) advance(want Status, fn func() error) bool {
	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil || s.status != want {
		s.mu.Unlock()
		return false
	}
	err := fn()
	snap, listeners := s.bumpLocked()
	s.mu.Unlock()
	s.publish(snap, listeners)
	if err != nil {
		s.log.Error("rejected status change", "err", err)
		return false
	}
	return true
}

// seal stops later failures from overriding the outcome of a step that is
// committing its results. It reports false unless the session is in want.
func (s *Session) seal(want Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil || s.status != want {
		return false
	}
	s.sealed = true
	return true
}

// goAsync runs fn on a tracked goroutine unless the session is closed.
func (s *Session) goAsync(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// ── Startup ───────────────────────────────────────────────────────────────────

func (s *Session) begin() {
	ctx := s.ctx
	s.mu.Lock()
	text := s.textInput
	s.mu.Unlock()

	if !text {
		if err := s.recorder.CheckPermission(); err != nil {
			s.fail(audioError("microphone check", err))
			return
		}
		if err := s.openTransport(ctx); err != nil {
			s.fail(newError(KindConnection, "open live channel",
				"Could not connect to the practice partner.", err))
			return
		}
	}
	s.opening(ctx)
}

func (s *Session) openTransport(ctx context.Context) error {
	start := time.Now()
	err := s.transport.Open(ctx, live.SessionConfig{
		Persona:  s.sc.Persona,
		Language: s.settings.Language,
		Level:    s.settings.Level,
	}, TransportEvents{
		OnText: func() { _, _ = s.update(func() error { return nil }) },
		OnFailure: func(err error) {
			s.mu.Lock()
			text := s.textInput
			s.mu.Unlock()
			if text {
				return
			}
			s.fail(newError(KindConnection, "live channel",
				"The connection to the practice partner was lost.", err))
		},
	})
	s.deps.Metrics.RecordRemoteCall(ctx, observe.CallLiveOpen, time.Since(start), err)
	return err
}

// opening speaks the persona's first line and leaves the session ready.
func (s *Session) opening(ctx context.Context) {
	if !s.transition(StatusSpeaking) {
		return
	}
	line := s.deps.Coach.OpeningLine(ctx, s.sc, s.settings.Language)
	if !s.advance(StatusSpeaking, func() error {
		s.transcript = append(s.transcript, scenario.TranscriptLine{Speaker: scenario.SpeakerCoach, Text: line})
		return nil
	}) {
		return
	}
	s.speak(ctx, line)
	s.advance(StatusSpeaking, func() error { return s.setStatusLocked(StatusReady) })
}

// speak synthesizes and plays text, returning once playback ended. Speech
// is skipped in text mode; synthesis or playback failures are only logged.
func (s *Session) speak(ctx context.Context, text string) {
	s.mu.Lock()
	skip := s.textInput || s.deps.Speech == nil
	s.mu.Unlock()
	if skip {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, s.deps.SpeechTimeout)
	start := time.Now()
	speech, err := s.deps.Speech.Synthesize(sctx, text, s.settings.SpeechRate)
	cancel()
	s.deps.Metrics.RecordRemoteCall(ctx, observe.CallSpeech, time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("speech synthesis failed", "err", err)
		}
		return
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closed || s.status != StatusSpeaking {
		s.mu.Unlock()
		return
	}
	err = s.player.Play(speech.PCM, speech.SampleRate, func() { close(done) })
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("playback failed", "err", err)
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// Close ends the attempt: pending callbacks are invalidated, playback,
// the live channel and capture are stopped concurrently, then the audio lease
// is released. Close blocks until background work has returned and is safe
// to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cancel()
		snap, listeners := s.bumpLocked()
		s.mu.Unlock()

		var g errgroup.Group
		g.Go(func() error {
			s.player.Stop()
			return nil
		})
		g.Go(func() error {
			if err := s.transport.Close(); err != nil {
				return fmt.Errorf("practice: close live channel: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := s.recorder.Stop(); err != nil {
				return fmt.Errorf("practice: stop recorder: %w", err)
			}
			return nil
		})
		s.closeErr = g.Wait()
		s.lease.Release()
		s.wg.Wait()

		s.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
		s.log.Info("practice session closed", "status", snap.Status, "turn", snap.Turn)
		s.publish(snap, listeners)
	})
	return s.closeErr
}

func audioError(op string, err error) *Error {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return newError(KindPermissionDenied, op, "Microphone access is unavailable.", err)
	}
	return newError(KindAudio, op, "The audio device failed.", err)
}
