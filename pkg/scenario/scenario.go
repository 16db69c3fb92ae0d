// Package scenario defines the practice content model: scenarios, transcript
// lines, per-turn feedback and the final scorecard, plus the built-in
// catalog and the learning-path ordering.
//
// Everything here is plain data. Sessions treat a [Scenario] as read-only for
// the lifetime of an attempt; personalisation produces a new value rather than
// mutating the template.
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// PassThreshold is the minimum overall score (inclusive) that counts as a
// passed attempt.
const PassThreshold = 70.0

// Difficulty ranks how demanding a scenario is.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultySuperHard Difficulty = "super hard"
)

// Rank returns the sort position of d (easy = 1 … super hard = 4). Unknown
// difficulties rank last.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	case DifficultySuperHard:
		return 4
	default:
		return 5
	}
}

// IsValid reports whether d is one of the known difficulty values.
func (d Difficulty) IsValid() bool {
	return d.Rank() <= 4
}

// Scenario is a scripted practice conversation.
type Scenario struct {
	ID          string `yaml:"id"          json:"id"`
	Title       string `yaml:"title"       json:"title"`
	Description string `yaml:"description" json:"description"`

	// Persona is the character brief handed to the live model and the coach.
	Persona string `yaml:"persona" json:"persona"`

	// InitialTurn is the coach's opening line in the scenario's native
	// language (English).
	InitialTurn string `yaml:"initialTurn" json:"initialTurn"`

	// MaxTurns is the number of user turns in one attempt.
	MaxTurns int `yaml:"maxTurns" json:"maxTurns"`

	CompletionGoal     string     `yaml:"completionGoal"     json:"completionGoal"`
	AssessmentCriteria []string   `yaml:"assessmentCriteria" json:"assessmentCriteria"`
	Difficulty         Difficulty `yaml:"difficulty"         json:"difficulty"`
	Tags               []string   `yaml:"tags"               json:"tags"`

	// UnlockLevel gates the scenario behind a ledger level. Zero means the
	// scenario is always available.
	UnlockLevel int `yaml:"unlockLevel,omitempty" json:"unlockLevel,omitempty"`
}

// Validate checks the fields a session depends on.
func (s *Scenario) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if s.Persona == "" {
		errs = append(errs, errors.New("persona is required"))
	}
	if s.InitialTurn == "" {
		errs = append(errs, errors.New("initialTurn is required"))
	}
	if s.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("maxTurns must be at least 1, got %d", s.MaxTurns))
	}
	if !s.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("unknown difficulty %q", s.Difficulty))
	}
	if len(errs) > 0 {
		return fmt.Errorf("scenario %q: %w", s.ID, errors.Join(errs...))
	}
	return nil
}

// Unlocked reports whether a learner at level may start s.
func (s *Scenario) Unlocked(level int) bool {
	return s.UnlockLevel == 0 || level >= s.UnlockLevel
}

// Clone returns a deep copy of s.
func (s Scenario) Clone() Scenario {
	s.AssessmentCriteria = append([]string(nil), s.AssessmentCriteria...)
	s.Tags = append([]string(nil), s.Tags...)
	return s
}

// Fingerprint returns a stable hash of the scenario's content. Two scenarios
// with the same ID but different (e.g. personalised) content have different
// fingerprints.
func (s *Scenario) Fingerprint() string {
	data, err := json.Marshal(s)
	if err != nil {
		// Scenario has only marshalable fields.
		panic(fmt.Sprintf("scenario: fingerprint: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// ─── Transcript ───────────────────────────────────────────────────────────────

// Speaker identifies who said a transcript line.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerCoach Speaker = "coach"
)

// TranscriptLine is one utterance in the conversation.
type TranscriptLine struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// ─── Scoring ──────────────────────────────────────────────────────────────────

// TurnFeedback is the coach's evaluation of a single user turn.
type TurnFeedback struct {
	// Score is in the range 0–100.
	Score       float64 `json:"score"`
	Tip         string  `json:"tip"`
	SampleReply string  `json:"sampleReply"`
}

// CriterionScore is the score for a single assessment criterion.
type CriterionScore struct {
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
}

// Scorecard is the final assessment of a completed attempt.
type Scorecard struct {
	OverallScore        float64          `json:"overallScore"`
	Strengths           []string         `json:"strengths"`
	AreasForImprovement []string         `json:"areasForImprovement"`
	CriteriaScores      []CriterionScore `json:"criteriaScores"`
}

// Passed reports whether the scorecard meets [PassThreshold].
func (s *Scorecard) Passed() bool {
	return s.OverallScore >= PassThreshold
}
