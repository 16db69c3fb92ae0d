package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/practice"
	"github.com/MrWong99/parley/internal/progress"
)

const help = `commands:
  list                 scenarios in learning-path order
  start <id> [text]    start a scenario (voice unless "text" is given)
  rec                  start or stop recording a voice turn
  say <text>           submit a typed turn
  next                 continue after turn feedback
  text                 switch the session to typed input
  retry                restart the current scenario
  persona <text>       restart with a rewritten coach persona
  status               show the session state
  progress             show level, XP and streak
  lang <language>      set the practice language
  rate <0.5-2.0>       set the coach speech rate
  goals <level> <g,..> set your level and practice goals
  quit                 exit`

// repl drives one app from line-oriented input. Session changes are printed
// as they are published.
type repl struct {
	app *app.App
	in  io.Reader

	mu  sync.Mutex
	out io.Writer

	// cur is the watched session; last is its most recently printed status.
	cur  *practice.Session
	last practice.Status
}

func newREPL(a *app.App, in io.Reader, out io.Writer) *repl {
	return &repl{app: a, in: in, out: out}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Run reads commands until quit, EOF or ctx ends.
func (r *repl) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.printf("%s\n> ", help)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := r.exec(ctx, strings.TrimSpace(line))
			if err != nil {
				r.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			r.printf("> ")
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	s := r.app.Sessions().Current()

	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		r.printf("%s\n", help)
	case "list":
		level := r.app.Ledger().Level(ctx)
		for _, sc := range r.app.LearningPath(ctx) {
			lock := ""
			if !sc.Unlocked(level) {
				lock = fmt.Sprintf(" (locked, level %d)", sc.UnlockLevel)
			}
			r.printf("  %-22s %-8s %s%s\n", sc.ID, sc.Difficulty, sc.Title, lock)
		}
	case "start":
		id, mode, _ := strings.Cut(arg, " ")
		if id == "" {
			return false, errors.New("usage: start <id> [text]")
		}
		s, err := r.app.StartPractice(ctx, id, strings.TrimSpace(mode) == "text")
		if err != nil {
			return false, err
		}
		if !r.app.Prefs().Load(ctx).QuickStartComplete {
			if _, err := r.app.Prefs().CompleteQuickStart(ctx); err != nil {
				slog.Warn("repl: mark quick start", "err", err)
			}
		}
		r.watch(s)
	case "retry":
		s, err := r.app.Sessions().Retry(ctx)
		if err != nil {
			return false, err
		}
		r.watch(s)
	case "persona":
		if arg == "" {
			return false, errors.New("usage: persona <text>")
		}
		s, err := r.app.CustomizePersona(ctx, arg)
		if err != nil {
			return false, err
		}
		r.watch(s)
	case "rec":
		if s == nil {
			return false, practice.ErrNoSession
		}
		return false, s.ToggleRecording()
	case "say":
		if s == nil {
			return false, practice.ErrNoSession
		}
		return false, s.SubmitText(arg)
	case "next":
		if s == nil {
			return false, practice.ErrNoSession
		}
		return false, s.Proceed()
	case "text":
		if s == nil {
			return false, practice.ErrNoSession
		}
		return false, s.UseTextInput()
	case "status":
		if s == nil {
			return false, practice.ErrNoSession
		}
		r.printSnapshot(s.Snapshot(), true)
	case "progress":
		st, err := r.app.Ledger().State(ctx)
		if err != nil {
			return false, err
		}
		r.printf("  level %d %s, %d/%d XP, streak %d, %d scenarios completed\n",
			st.Level, st.LevelName, st.XPInLevel, st.XPForNextLevel, st.Streak, len(st.Completed))
	case "lang":
		if arg == "" {
			return false, errors.New("usage: lang <language>")
		}
		_, err := r.app.Prefs().SetLanguage(ctx, arg)
		return false, err
	case "rate":
		rate, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false, fmt.Errorf("usage: rate <0.5-2.0>: %w", err)
		}
		p, err := r.app.Prefs().SetSpeechRate(ctx, rate)
		if err != nil {
			return false, err
		}
		r.printf("  speech rate %.2f\n", p.SpeechRate)
	case "goals":
		level, list, _ := strings.Cut(arg, " ")
		if level == "" {
			return false, errors.New("usage: goals <level> <goal,goal,...>")
		}
		var goals []string
		for _, g := range strings.Split(list, ",") {
			if g = strings.TrimSpace(g); g != "" {
				goals = append(goals, g)
			}
		}
		p, err := r.app.Prefs().SetInitialPreferences(ctx, goals, level)
		if err != nil {
			return false, err
		}
		r.printf("  level %s, goals %s\n", p.Level, strings.Join(p.Goals, ", "))
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

// watch subscribes to s and prints each status change once.
func (r *repl) watch(s *practice.Session) {
	r.mu.Lock()
	r.cur, r.last = s, ""
	r.mu.Unlock()
	s.OnChange(func(snap practice.Snapshot) {
		r.mu.Lock()
		changed := r.cur == s && snap.Status != r.last
		if changed {
			r.last = snap.Status
		}
		r.mu.Unlock()
		if changed {
			r.printSnapshot(snap, false)
		}
	})
	r.printSnapshot(s.Snapshot(), false)
}

func (r *repl) printSnapshot(snap practice.Snapshot, full bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] turn %d/%d\n", snap.Status, snap.Turn, snap.MaxTurns)

	switch snap.Status {
	case practice.StatusReady, practice.StatusTurnComplete:
		if n := len(snap.Transcript); n > 0 && !full {
			l := snap.Transcript[n-1]
			fmt.Fprintf(&b, "  %s: %s\n", l.Speaker, l.Text)
		}
	case practice.StatusScenarioComplete:
		if c := snap.Scorecard; c != nil {
			verdict := "not passed"
			if snap.Passed {
				verdict = "passed"
			}
			fmt.Fprintf(&b, "  score %.1f (%s)\n", c.OverallScore, verdict)
			for _, cs := range c.CriteriaScores {
				fmt.Fprintf(&b, "  - %s: %.0f\n", cs.Criterion, cs.Score)
			}
			writeList(&b, "strengths", c.Strengths)
			writeList(&b, "to improve", c.AreasForImprovement)
		}
		writeAchievements(&b, snap.NewAchievements)
	}
	if full {
		for _, l := range snap.Transcript {
			fmt.Fprintf(&b, "  %s: %s\n", l.Speaker, l.Text)
		}
		if snap.LiveTranscription != "" {
			fmt.Fprintf(&b, "  (hearing) %s\n", snap.LiveTranscription)
		}
	}
	if fb := snap.Feedback; fb != nil {
		fmt.Fprintf(&b, "  feedback %.0f: %s\n  try: %s\n", fb.Score, fb.Tip, fb.SampleReply)
	}
	if snap.Notice != "" {
		fmt.Fprintf(&b, "  %s\n", snap.Notice)
	}
	if e := snap.Err; e != nil {
		fmt.Fprintf(&b, "  %s\n", e.Message)
		for _, step := range e.Troubleshooting {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
		if e.CanUseTextInput() {
			b.WriteString("  type \"text\" to continue with typed input\n")
		}
	}
	r.printf("%s", b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

func writeAchievements(b *strings.Builder, as []progress.Achievement) {
	for _, a := range as {
		fmt.Fprintf(b, "  achievement unlocked: %s\n", a.Name)
	}
}
