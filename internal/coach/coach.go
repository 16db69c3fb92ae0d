// Package coach produces everything the practice runtime asks a remote
// model for: per-turn feedback, the final scorecard, the coach's next line,
// a localized opening line and scenario personalization.
//
// Structured replies are decoded tolerantly (code fences and surrounding
// prose are ignored) and then validated against a JSON Schema before they
// are trusted. Any decode or validation failure is an [ErrInvalidResponse].
// Every call runs under its own timeout.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/scenario"
)

// Default per-call timeouts.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultAssessmentTimeout = 45 * time.Second
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("coach: empty model reply")

// Personalized is the outcome of [Service.Personalize].
type Personalized struct {
	Scenario *scenario.Scenario

	// Goal is the learner goal the model wove in; nil when personalization
	// did not apply one.
	Goal *string
}

// Service issues coach requests against LLM providers.
type Service struct {
	fast     llm.Provider
	assessor llm.Provider

	timeout           time.Duration
	assessmentTimeout time.Duration

	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAssessor routes final assessments to p, typically a stronger model.
func WithAssessor(p llm.Provider) Option {
	return func(s *Service) { s.assessor = p }
}

// WithTimeouts overrides the per-call timeouts. Zero values keep defaults.
func WithTimeouts(call, assessment time.Duration) Option {
	return func(s *Service) {
		if call > 0 {
			s.timeout = call
		}
		if assessment > 0 {
			s.assessmentTimeout = assessment
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a Service that sends every request to p unless an assessor
// is configured.
func New(p llm.Provider, opts ...Option) *Service {
	s := &Service{
		fast:              p,
		timeout:           DefaultTimeout,
		assessmentTimeout: DefaultAssessmentTimeout,
		log:               slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.assessor == nil {
		s.assessor = s.fast
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// TurnFeedback scores the most recent user line of history.
func (s *Service) TurnFeedback(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language string) (scenario.TurnFeedback, error) {
	var fb scenario.TurnFeedback
	err := s.structured(ctx, observe.CallFeedback, s.fast, s.timeout, feedbackSchema,
		feedbackPrompt(sc, lines, language), &fb)
	if err != nil {
		return scenario.TurnFeedback{}, err
	}
	return fb, nil
}

// FinalAssessment scores the whole conversation.
func (s *Service) FinalAssessment(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language string) (scenario.Scorecard, error) {
	var card scenario.Scorecard
	err := s.structured(ctx, observe.CallAssessment, s.assessor, s.assessmentTimeout, scorecardSchema,
		assessmentPrompt(sc, lines, language), &card)
	if err != nil {
		return scenario.Scorecard{}, err
	}
	if card.Strengths == nil {
		card.Strengths = []string{}
	}
	if card.AreasForImprovement == nil {
		card.AreasForImprovement = []string{}
	}
	return card, nil
}

// NextLine generates the coach's next line of dialogue.
func (s *Service) NextLine(ctx context.Context, sc *scenario.Scenario, lines []scenario.TranscriptLine, language, level string) (string, error) {
	return s.text(ctx, observe.CallCoachLine, nextLinePrompt(sc, lines, language, level))
}

// OpeningLine returns the scenario's opening line in language. English is
// passed through unchanged; on any failure the template line is used.
func (s *Service) OpeningLine(ctx context.Context, sc *scenario.Scenario, language string) string {
	if isNative(language) {
		return sc.InitialTurn
	}
	line, err := s.text(ctx, observe.CallOpeningLine, openingPrompt(sc, language))
	if err != nil {
		s.log.Warn("coach: localizing opening line failed, using template", "scenario", sc.ID, "language", language, "err", err)
		return sc.InitialTurn
	}
	return line
}

// personalizedReply is the wire shape of a personalization answer.
type personalizedReply struct {
	Scenario struct {
		Description    string `json:"description"`
		Persona        string `json:"persona"`
		InitialTurn    string `json:"initialTurn"`
		CompletionGoal string `json:"completionGoal"`
	} `json:"scenario"`
	PersonalizedGoal *string `json:"personalizedGoal"`
}

// Personalize tailors tmpl to the learner. Only the narrative fields are
// taken from the model; identity, turn budget, criteria, difficulty, tags
// and unlock level always come from tmpl. It never fails: on any error
// the template is returned with a localized opening line and a nil goal.
func (s *Service) Personalize(ctx context.Context, tmpl *scenario.Scenario, goals []string, level, language string) Personalized {
	fallback := func(err error) Personalized {
		s.log.Warn("coach: personalization failed, using template", "scenario", tmpl.ID, "err", err)
		out := tmpl.Clone()
		out.InitialTurn = s.OpeningLine(ctx, tmpl, language)
		return Personalized{Scenario: &out}
	}

	prompt, err := personalizePrompt(tmpl, goals, level, language)
	if err != nil {
		return fallback(err)
	}
	var reply personalizedReply
	if err := s.structured(ctx, observe.CallPersonalize, s.fast, s.timeout, personalizedSchema, prompt, &reply); err != nil {
		return fallback(err)
	}

	out := tmpl.Clone()
	out.Description = reply.Scenario.Description
	out.Persona = reply.Scenario.Persona
	out.InitialTurn = reply.Scenario.InitialTurn
	if g := strings.TrimSpace(reply.Scenario.CompletionGoal); g != "" {
		out.CompletionGoal = g
	}
	if err := out.Validate(); err != nil {
		return fallback(err)
	}

	var goal *string
	if reply.PersonalizedGoal != nil && strings.TrimSpace(*reply.PersonalizedGoal) != "" {
		g := strings.TrimSpace(*reply.PersonalizedGoal)
		goal = &g
	}
	return Personalized{Scenario: &out, Goal: goal}
}

// ── request plumbing ──

func (s *Service) structured(ctx context.Context, kind string, p llm.Provider, timeout time.Duration, d schemaDef, prompt string, v any) (err error) {
	ctx, span := observe.StartSpan(ctx, "coach."+kind)
	start := time.Now()
	defer func() {
		s.metrics.RecordRemoteCall(ctx, kind, time.Since(start), err)
		observe.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Complete(ctx, llm.CompletionRequest{
		Messages:       []llm.Message{llm.UserMessage(prompt)},
		ResponseSchema: d.def,
	})
	if err != nil {
		return fmt.Errorf("coach: %s: %w", kind, err)
	}
	if err := decode(d, resp.Content, v); err != nil {
		s.log.Debug("coach: undecodable reply", "kind", kind, "content", resp.Content)
		return err
	}
	return nil
}

func (s *Service) text(ctx context.Context, kind, prompt string) (line string, err error) {
	ctx, span := observe.StartSpan(ctx, "coach."+kind)
	start := time.Now()
	defer func() {
		s.metrics.RecordRemoteCall(ctx, kind, time.Since(start), err)
		observe.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.fast.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("coach: %s: %w", kind, err)
	}
	line = cleanLine(resp.Content)
	if line == "" {
		return "", ErrEmptyReply
	}
	return line, nil
}

// cleanLine trims whitespace, a leading "coach:" label and wrapping quotes.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 6 && strings.EqualFold(s[:6], "coach:") {
		s = strings.TrimSpace(s[6:])
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// isNative reports whether language is the catalog's authoring language.
func isNative(language string) bool {
	return language == "" || strings.Contains(strings.ToLower(language), "english")
}
