package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/pkg/scenario"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(days int) { c.t = c.t.AddDate(0, 0, days) }
func newClock() *clock { return &clock{t: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)} }
func card(score float64) scenario.Scorecard { return scenario.Scorecard{OverallScore: score} }

func newLedger(t *testing.T, c *clock) *Ledger {
	t.Helper()
	return New(store.NewMemory(),
		WithClock(c.now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func ids(as []Achievement) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp    int
		level int
		name  string
	}{
		{0, 1, "Novice"},
		{99, 1, "Novice"},
		{100, 2, "Apprentice"},
		{599, 3, "Initiate"},
		{5000, 10, "Champion"},
		{99999, 10, "Champion"},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.xp); got != tt.level {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.level)
		}
		if got := LevelName(LevelFor(tt.xp)); got != tt.name {
			t.Errorf("LevelName(LevelFor(%d)) = %q, want %q", tt.xp, got, tt.name)
		}
	}
}

func TestRecordCompletion_XPAndAchievements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, newClock())
	s := &scenario.Scenario{ID: "customer-support-1"}

	got, err := l.RecordCompletion(ctx, card(86.6), s)
	if err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	if want := []string{"first-steps", "customer-champ"}; !equal(ids(got), want) {
		t.Errorf("unlocked = %v, want %v", ids(got), want)
	}

	st, err := l.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.TotalXP != 87 {
		t.Errorf("TotalXP = %d, want 87", st.TotalXP)
	}
	if st.XPInLevel != 87 || st.XPForNextLevel != 100 {
		t.Errorf("level span = %d/%d, want 87/100", st.XPInLevel, st.XPForNextLevel)
	}
	if !st.IsCompleted("customer-support-1") {
		t.Error("scenario not marked completed")
	}

	// Achievements unlock at most once.
	got, err = l.RecordCompletion(ctx, card(99), s)
	if err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	if want := []string{"high-scorer"}; !equal(ids(got), want) {
		t.Errorf("second unlocked = %v, want %v", ids(got), want)
	}
	st, _ = l.State(ctx)
	if len(st.Completed) != 1 {
		t.Errorf("Completed = %v, want one entry", st.Completed)
	}
	if st.Level != 2 {
		t.Errorf("Level = %d, want 2 at %d xp", st.Level, st.TotalXP)
	}
}

func TestRecordCompletion_Streak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClock()
	l := newLedger(t, c)
	s := &scenario.Scenario{ID: "job-interview-1"}

	streak := func() int {
		t.Helper()
		st, err := l.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		return st.Streak
	}
	record := func() {
		t.Helper()
		if _, err := l.RecordCompletion(ctx, card(75), s); err != nil {
			t.Fatalf("RecordCompletion: %v", err)
		}
	}

	record()
	if got := streak(); got != 1 {
		t.Fatalf("first day streak = %d, want 1", got)
	}
	record()
	if got := streak(); got != 1 {
		t.Errorf("same day streak = %d, want 1", got)
	}
	c.advance(1)
	record()
	if got := streak(); got != 2 {
		t.Errorf("next day streak = %d, want 2", got)
	}
	c.advance(1)
	if got := streak(); got != 2 {
		t.Errorf("streak read one day later = %d, want 2", got)
	}
	c.advance(2)
	if got := streak(); got != 0 {
		t.Errorf("streak read after gap = %d, want 0", got)
	}
	record()
	if got := streak(); got != 1 {
		t.Errorf("streak after gap = %d, want 1", got)
	}
}

func TestRecordCompletion_StoreFailure(t *testing.T) {
	t.Parallel()

	l := New(failingKV{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := l.RecordCompletion(context.Background(), card(80), &scenario.Scenario{ID: "x"})
	if !errors.Is(err, errBroken) {
		t.Errorf("err = %v, want wrapped errBroken", err)
	}
	if got := l.Level(context.Background()); got != 1 {
		t.Errorf("Level on failure = %d, want 1", got)
	}
}

var errBroken = errors.New("broken")

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errBroken }
func (failingKV) Put(context.Context, string, string) error { return errBroken }
func (failingKV) Delete(context.Context, string) error { return errBroken }
func (failingKV) Close() error { return nil }

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
