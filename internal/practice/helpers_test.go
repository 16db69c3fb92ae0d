package practice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/progress"
	"github.com/MrWong99/parley/pkg/audio"
	audiomock "github.com/MrWong99/parley/pkg/audio/mock"
	livemock "github.com/MrWong99/parley/pkg/provider/live/mock"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
	"github.com/MrWong99/parley/pkg/scenario"
)

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:                 "coffee-order",
		Title:              "Ordering Coffee",
		Persona:            "You are Sam, a friendly barista.",
		InitialTurn:        "Hi there! What can I get you today?",
		MaxTurns:           3,
		CompletionGoal:     "Order a drink and pay.",
		AssessmentCriteria: []string{"Politeness", "Clarity"},
		Difficulty:         scenario.DifficultyEasy,
	}
}

// stubCoach scores every turn with a fixed value and counts calls.
type stubCoach struct {
	mu sync.Mutex

	score       float64
	feedbackErr error
	lineErr     error
	assessErr   error

	// feedbackHook, if set, runs before each feedback reply.
	feedbackHook func(ctx context.Context) error
	// lineHook and assessHook run before each coach line and assessment.
	lineHook   func()
	assessHook func()

	feedbackCalls int
	lineCalls     int
	assessCalls   int
	openingCalls  int
}

func (c *stubCoach) TurnFeedback(ctx context.Context, _ *scenario.Scenario, lines []scenario.TranscriptLine, _ string) (scenario.TurnFeedback, error) {
	c.mu.Lock()
	c.feedbackCalls++
	hook, err := c.feedbackHook, c.feedbackErr
	c.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return scenario.TurnFeedback{}, err
		}
	}
	if err != nil {
		return scenario.TurnFeedback{}, err
	}
	last := lines[len(lines)-1]
	return scenario.TurnFeedback{Score: 80, Tip: "Nice.", SampleReply: "Re: " + last.Text}, nil
}

func (c *stubCoach) FinalAssessment(context.Context, *scenario.Scenario, []scenario.TranscriptLine, string) (scenario.Scorecard, error) {
	c.mu.Lock()
	hook := c.assessHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.assessCalls++
	if c.assessErr != nil {
		return scenario.Scorecard{}, c.assessErr
	}
	return scenario.Scorecard{
		OverallScore:        c.score,
		Strengths:           []string{"Friendly tone"},
		AreasForImprovement: []string{"Use past tense"},
	}, nil
}

func (c *stubCoach) NextLine(context.Context, *scenario.Scenario, []scenario.TranscriptLine, string, string) (string, error) {
	c.mu.Lock()
	hook := c.lineHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lineCalls++
	if c.lineErr != nil {
		return "", c.lineErr
	}
	return fmt.Sprintf("Coach line %d", c.lineCalls), nil
}

func (c *stubCoach) OpeningLine(_ context.Context, sc *scenario.Scenario, _ string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openingCalls++
	return sc.InitialTurn
}

func (c *stubCoach) counts() (feedback, lines, assess int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedbackCalls, c.lineCalls, c.assessCalls
}

type stubLedger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *stubLedger) RecordCompletion(context.Context, scenario.Scorecard, *scenario.Scenario) ([]progress.Achievement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return []progress.Achievement{{ID: "first-steps", Name: "First Steps"}}, nil
}

func (l *stubLedger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// rig bundles the mocks a session runs against.
type rig struct {
	live    *livemock.Provider
	backend *audiomock.Backend
	audio   *audio.ContextManager
	coach   *stubCoach
	speech  *ttsmock.Synthesizer
	ledger  *stubLedger
}

func newRig(t *testing.T) *rig {
	t.Helper()
	backend := audiomock.NewBackend()
	return &rig{
		live:    &livemock.Provider{},
		backend: backend,
		audio:   audio.NewContextManager(backend),
		coach:   &stubCoach{score: 85},
		speech:  &ttsmock.Synthesizer{},
		ledger:  &stubLedger{},
	}
}

func (r *rig) deps(t *testing.T) Deps {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return Deps{
		Live:               r.live,
		Audio:              r.audio,
		Coach:              r.coach,
		Speech:             r.speech,
		Ledger:             r.ledger,
		Metrics:            m,
		TranscriptionGrace: 10 * time.Millisecond,
		FramesPerBuffer:    256,
	}
}

// start builds and starts a session, closing it at test end.
func (r *rig) start(t *testing.T, st Settings) *Session {
	t.Helper()
	s, err := NewSession(testScenario(), st, r.deps(t))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func waitStatus(t *testing.T, s *Session, want ...Status) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := s.WaitStatus(ctx, want...)
	if err != nil {
		t.Fatalf("waiting for %v: status = %s, err = %v", want, snap.Status, err)
	}
	return snap
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
