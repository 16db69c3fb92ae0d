// Package progress implements the gamification ledger: experience points,
// levels, daily practice streaks, achievements and the set of completed
// scenarios.
//
// The ledger is one JSON document in a [store.KV]. Days are calendar days
// in UTC.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/pkg/scenario"
)

const (
	key        = "progress"
	dateLayout = "2006-01-02"
)

// record is the persisted form.
type record struct {
	TotalXP      int      `json:"totalXp"`
	Streak       int      `json:"practiceStreak"`
	LastPractice string   `json:"lastPracticeDate,omitempty"`
	Unlocked     []string `json:"unlockedAchievements"`
	Completed    []string `json:"completedScenarios"`
}

// State is a read-only view of the ledger.
type State struct {
	Level           int
	LevelName       string
	Streak          int
	TotalXP         int
	XPInLevel       int
	XPForNextLevel  int
	Unlocked        []string
	Completed       []string
	LastPracticeDay string
}

// IsCompleted reports whether scenarioID has been passed at least once.
func (s State) IsCompleted(scenarioID string) bool {
	return slices.Contains(s.Completed, scenarioID)
}

// Ledger records scenario completions.
type Ledger struct {
	mu  sync.Mutex
	kv  store.KV
	now func() time.Time
	log *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a Ledger over kv.
func New(kv store.KV, opts ...Option) *Ledger {
	l := &Ledger{kv: kv, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the current ledger view. A streak whose last practice day
// is more than one day ago reads as zero.
func (l *Ledger) State(ctx context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.load(ctx)
	if err != nil {
		return State{}, err
	}
	return l.view(rec), nil
}

// Level returns the learner's current level, or 1 when the ledger cannot
// be read.
func (l *Ledger) Level(ctx context.Context) int {
	st, err := l.State(ctx)
	if err != nil {
		l.log.Warn("progress: read failed", "err", err)
		return 1
	}
	return st.Level
}

// RecordCompletion credits a passed scenario: XP equal to the rounded
// overall score, the scenario marked completed, the streak advanced and
// any not-yet-held achievements unlocked. It returns the newly unlocked
// achievements in catalog order.
func (l *Ledger) RecordCompletion(ctx context.Context, card scenario.Scorecard, s *scenario.Scenario) ([]Achievement, error) {
	if s == nil {
		return nil, errors.New("progress: record completion: nil scenario")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	rec.TotalXP += int(math.Round(card.OverallScore))
	if !slices.Contains(rec.Completed, s.ID) {
		rec.Completed = append(rec.Completed, s.ID)
	}

	today := l.today()
	switch gap, ok := daysSince(rec.LastPractice, today); {
	case !ok:
		rec.Streak = 1
	case gap == 1:
		rec.Streak++
	case gap > 1:
		rec.Streak = 1
	case rec.Streak == 0:
		rec.Streak = 1
	}
	rec.LastPractice = today.Format(dateLayout)

	var unlocked []Achievement
	for _, a := range Achievements {
		if slices.Contains(rec.Unlocked, a.ID) || !a.Earned(card, s) {
			continue
		}
		rec.Unlocked = append(rec.Unlocked, a.ID)
		unlocked = append(unlocked, a)
	}

	if err := l.save(ctx, rec); err != nil {
		return nil, err
	}
	l.log.Info("progress: completion recorded",
		"scenario", s.ID, "xp", rec.TotalXP, "streak", rec.Streak, "unlocked", len(unlocked))
	return unlocked, nil
}

// ── persistence ──

func (l *Ledger) load(ctx context.Context) (record, error) {
	rec := record{Unlocked: []string{}, Completed: []string{}}
	raw, err := l.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("progress: load: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		l.log.Warn("progress: stored ledger is corrupt, starting fresh", "err", err)
		return record{Unlocked: []string{}, Completed: []string{}}, nil
	}
	return rec, nil
}

func (l *Ledger) save(ctx context.Context, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("progress: encode: %w", err)
	}
	if err := l.kv.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("progress: save: %w", err)
	}
	return nil
}

func (l *Ledger) view(rec record) State {
	level := LevelFor(rec.TotalXP)
	in, width := levelSpan(rec.TotalXP)
	streak := rec.Streak
	if gap, ok := daysSince(rec.LastPractice, l.today()); ok && gap > 1 {
		streak = 0
	}
	return State{
		Level:           level,
		LevelName:       LevelName(level),
		Streak:          streak,
		TotalXP:         rec.TotalXP,
		XPInLevel:       in,
		XPForNextLevel:  width,
		Unlocked:        slices.Clone(rec.Unlocked),
		Completed:       slices.Clone(rec.Completed),
		LastPracticeDay: rec.LastPractice,
	}
}

func (l *Ledger) today() time.Time {
	t := l.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysSince returns whole days from the stored day to today; ok is false
// when no valid day is stored.
func daysSince(last string, today time.Time) (int, bool) {
	if last == "" {
		return 0, false
	}
	d, err := time.Parse(dateLayout, last)
	if err != nil {
		return 0, false
	}
	return int(today.Sub(d).Hours() / 24), true
}
