package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/portaudio"
	"github.com/MrWong99/parley/pkg/provider/live"
	livegemini "github.com/MrWong99/parley/pkg/provider/live/gemini"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	llmgemini "github.com/MrWong99/parley/pkg/provider/llm/gemini"
	llmopenai "github.com/MrWong99/parley/pkg/provider/llm/openai"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/tts/elevenlabs"
	ttsgemini "github.com/MrWong99/parley/pkg/provider/tts/gemini"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	LLM      llm.Provider
	Assessor llm.Provider
	Live     live.Provider
	TTS      tts.Synthesizer
	Audio    audio.Backend
}

// anyLLMBackends are served through any-llm-go. gemini and openai have
// dedicated implementations.
var anyLLMBackends = []string{"anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// RegisterBuiltinProviders wires all built-in provider factories into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("gemini", func(ctx context.Context, e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmgemini.Option
		if e.Model != "" {
			opts = append(opts, llmgemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, llmgemini.WithBaseURL(e.BaseURL))
		}
		return llmgemini.New(ctx, e.APIKey, opts...)
	})

	reg.RegisterLLM("openai", func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		if org := config.OptString(e.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})

	for _, name := range anyLLMBackends {
		reg.RegisterLLM(name, func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini", func(_ context.Context, e config.ProviderEntry) (live.Provider, error) {
		if e.APIKey == "" {
			return nil, errors.New("gemini live: api_key is required")
		}
		var opts []livegemini.Option
		if e.Model != "" {
			opts = append(opts, livegemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(e.BaseURL))
		}
		if v := config.OptString(e.Options, "voice"); v != "" {
			opts = append(opts, livegemini.WithVoice(v))
		}
		return livegemini.New(e.APIKey, opts...), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("gemini", func(ctx context.Context, e config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []ttsgemini.Option
		if e.Model != "" {
			opts = append(opts, ttsgemini.WithModel(e.Model))
		}
		if v := config.OptString(e.Options, "voice"); v != "" {
			opts = append(opts, ttsgemini.WithVoice(v))
		}
		if e.BaseURL != "" {
			opts = append(opts, ttsgemini.WithBaseURL(e.BaseURL))
		}
		return ttsgemini.New(ctx, e.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(_ context.Context, e config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := config.OptString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, config.OptString(e.Options, "voice_id"), opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("portaudio", func(context.Context, config.ProviderEntry) (audio.Backend, error) {
		return portaudio.New(), nil
	})
	reg.RegisterAudio("none", func(context.Context, config.ProviderEntry) (audio.Backend, error) {
		return audio.Disabled{}, nil
	})
}

// BuildProviders instantiates all providers named in cfg using the registry.
// The LLM and audio backend are required; the rest are optional.
func BuildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	var err error

	if ps.LLM, err = reg.CreateLLM(ctx, cfg.Providers.LLM); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if name := cfg.Providers.Assessor.Name; name != "" {
		if ps.Assessor, err = reg.CreateLLM(ctx, cfg.Providers.Assessor); err != nil {
			return nil, fmt.Errorf("create assessor provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "assessor", "name", name)
	}

	if name := cfg.Providers.Live.Name; name != "" {
		if ps.Live, err = reg.CreateLive(ctx, cfg.Providers.Live); err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "live", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		if ps.TTS, err = reg.CreateTTS(ctx, cfg.Providers.TTS); err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if ps.Audio, err = reg.CreateAudio(ctx, cfg.Audio.Backend); err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend)

	if err := applyFailover(ctx, cfg, reg, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// applyFailover wraps the LLM, assessor and TTS slots in failover chains
// when fallbacks are configured. The assessor shares the LLM fallbacks.
func applyFailover(ctx context.Context, cfg *config.Config, reg *config.Registry, ps *Providers) error {
	bc := resilience.BreakerConfig{
		MaxFailures: cfg.Failover.MaxFailures,
		Cooldown:    cfg.Failover.Cooldown,
	}

	if fbs := cfg.Providers.LLMFallbacks; len(fbs) > 0 {
		fallbacks := make([]llm.Provider, len(fbs))
		for i, e := range fbs {
			p, err := reg.CreateLLM(ctx, e)
			if err != nil {
				return fmt.Errorf("create llm fallback %q: %w", e.Name, err)
			}
			fallbacks[i] = p
		}
		wrap := func(name string, primary llm.Provider) llm.Provider {
			f := resilience.NewLLM(name, primary, bc)
			for i, e := range fbs {
				f.Add(fmt.Sprintf("%s#%d", e.Name, i+1), fallbacks[i])
			}
			return f
		}
		ps.LLM = wrap(cfg.Providers.LLM.Name, ps.LLM)
		if ps.Assessor != nil {
			ps.Assessor = wrap(cfg.Providers.Assessor.Name, ps.Assessor)
		}
		slog.Info("llm failover enabled", "fallbacks", len(fbs))
	}

	if fbs := cfg.Providers.TTSFallbacks; len(fbs) > 0 && ps.TTS != nil {
		f := resilience.NewSpeech(cfg.Providers.TTS.Name, ps.TTS, bc)
		for i, e := range fbs {
			s, err := reg.CreateTTS(ctx, e)
			if err != nil {
				return fmt.Errorf("create tts fallback %q: %w", e.Name, err)
			}
			f.Add(fmt.Sprintf("%s#%d", e.Name, i+1), s)
		}
		ps.TTS = f
		slog.Info("tts failover enabled", "fallbacks", len(fbs))
	}
	return nil
}

// ErrNoLiveProvider is reported when a voice session starts without a
// configured live channel.
var ErrNoLiveProvider = errors.New("app: no live provider configured")

// noLive fails every open so voice sessions land in the connection error
// state and the learner can switch to text input.
type noLive struct{}

func (noLive) Open(context.Context, live.SessionConfig, live.Handlers) (live.Session, error) {
	return nil, ErrNoLiveProvider
}
