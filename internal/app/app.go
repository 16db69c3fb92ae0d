// Package app wires all Parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves observability endpoints until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject in-memory implementations via functional options
// (WithStore, WithCatalog, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/coach"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/practice"
	"github.com/MrWong99/parley/internal/prefs"
	"github.com/MrWong99/parley/internal/progress"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/scenario"
)

// ErrLocked is returned by StartPractice for a scenario above the learner's level.
var ErrLocked = errors.New("app: scenario is locked")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	kv      store.KV
	catalog *scenario.Catalog
	prefs   *prefs.Store
	ledger  *progress.Ledger
	coach   *coach.Service
	audio   *audio.ContextManager
	manager *practice.Manager
	metrics *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a key-value store instead of opening one from config.
// The injected store is not closed on Shutdown.
func WithStore(kv store.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithCatalog injects a scenario catalog instead of loading one from config.
func WithCatalog(c *scenario.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics injects the metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Scenario catalog ─────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Durable store ────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.prefs = prefs.New(a.kv)
	a.ledger = progress.New(a.kv)

	// ── 3. Coach ────────────────────────────────────────────────────────
	coachOpts := []coach.Option{
		coach.WithTimeouts(cfg.Practice.CallTimeout, cfg.Practice.AssessmentTimeout),
		coach.WithMetrics(a.metrics),
	}
	if providers.Assessor != nil {
		coachOpts = append(coachOpts, coach.WithAssessor(providers.Assessor))
	}
	a.coach = coach.New(providers.LLM, coachOpts...)

	// ── 4. Audio and sessions ───────────────────────────────────────────
	backend := providers.Audio
	if backend == nil {
		backend = audio.Disabled{}
	}
	a.audio = audio.NewContextManager(backend,
		audio.WithInputRate(cfg.Audio.InputRate),
		audio.WithOutputRate(cfg.Audio.OutputRate),
	)
	liveProvider := providers.Live
	if liveProvider == nil {
		liveProvider = noLive{}
	}
	a.manager = practice.NewManager(practice.Deps{
		Live:               liveProvider,
		Audio:              a.audio,
		Coach:              a.coach,
		Speech:             providers.TTS,
		Ledger:             a.ledger,
		Metrics:            a.metrics,
		TranscriptionGrace: cfg.Practice.TranscriptionGrace,
		SpeechTimeout:      cfg.Practice.SpeechTimeout,
		FramesPerBuffer:    cfg.Audio.FramesPerBuffer,
	})

	slog.Info("app initialised",
		"scenarios", a.catalog.Len(),
		"storage", cfg.Storage.Driver,
		"audio", cfg.Audio.Backend,
		"live", providers.Live != nil,
		"tts", providers.TTS != nil,
	)
	return a, nil
}

func (a *App) initCatalog() error {
	if a.catalog != nil {
		return nil
	}
	if path := a.cfg.Scenarios.Path; path != "" {
		c, err := scenario.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		a.catalog = c
		return nil
	}
	a.catalog = scenario.Builtin()
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.kv != nil {
		return nil
	}
	if a.cfg.Storage.Driver == config.StorageMemory {
		slog.Warn("storage.driver is memory; preferences and progress are lost on exit")
		a.kv = store.NewMemory()
		return nil
	}
	db, err := store.Open(ctx, string(a.cfg.Storage.Driver), a.cfg.Storage.DSN)
	if err != nil {
		return err
	}
	a.kv = db
	a.closers = append(a.closers, db.Close)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Catalog returns the scenario catalog.
func (a *App) Catalog() *scenario.Catalog { return a.catalog }

// Prefs returns the preference store.
func (a *App) Prefs() *prefs.Store { return a.prefs }

// Ledger returns the progress ledger.
func (a *App) Ledger() *progress.Ledger { return a.ledger }

// Sessions returns the session manager.
func (a *App) Sessions() *practice.Manager { return a.manager }

// Ready reports whether practice sessions can be served.
func (a *App) Ready(ctx context.Context) error {
	if a.catalog.Len() == 0 {
		return errors.New("app: scenario catalog is empty")
	}
	if _, err := a.kv.Get(ctx, "readiness-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("app: store unavailable: %w", err)
	}
	return nil
}

// ─── Practice flow ───────────────────────────────────────────────────────────

// LearningPath returns the catalog ordered for the learner's goals.
func (a *App) LearningPath(ctx context.Context) []scenario.Scenario {
	p := a.prefs.Load(ctx)
	return scenario.LearningPath(a.catalog.All(), p.Goals)
}

// StartPractice personalizes the scenario for the learner and opens a
// session for it. textInput starts the session without microphone or live
// channel.
func (a *App) StartPractice(ctx context.Context, scenarioID string, textInput bool) (*practice.Session, error) {
	tmpl, err := a.catalog.Get(scenarioID)
	if err != nil {
		return nil, err
	}
	if level := a.ledger.Level(ctx); !tmpl.Unlocked(level) {
		return nil, fmt.Errorf("%w: %q requires level %d, learner is level %d", ErrLocked, scenarioID, tmpl.UnlockLevel, level)
	}

	p := a.prefs.Load(ctx)
	language := p.Language
	if language == "" {
		language = a.cfg.User.Language
	}
	pers := a.coach.Personalize(ctx, &tmpl, p.Goals, p.Level, language)
	if pers.Goal != nil {
		slog.Info("personalized goal", "scenario", scenarioID, "goal", *pers.Goal)
	}

	return a.manager.Open(ctx, pers.Scenario, practice.Settings{
		Language:   language,
		Level:      p.Level,
		SpeechRate: p.SpeechRate,
		TextInput:  textInput || a.providers.Live == nil,
	})
}

// CustomizePersona restarts the current practice with persona replacing the
// coach's character. The old session and its audio lease are released first.
func (a *App) CustomizePersona(ctx context.Context, persona string) (*practice.Session, error) {
	return a.manager.CustomizePersona(ctx, persona)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the observability endpoints (when server.metrics_addr is set)
// and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return observe.Serve(ctx, addr, observe.NewMux(a.metrics, a.Ready))
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the active session, then runs closers in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.manager.Close(); err != nil {
			slog.Warn("session close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
