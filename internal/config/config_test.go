package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/live"
	"github.com/MrWong99/parley/pkg/provider/llm"
	llmmock "github.com/MrWong99/parley/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  log_level: debug
  metrics_addr: ":9090"

providers:
  llm:
    name: gemini
    api_key: ${PARLEY_TEST_KEY}
    model: gemini-2.5-flash
  assessor:
    name: openai
    api_key: sk-test
    model: gpt-4o
  live:
    name: gemini
    api_key: ${PARLEY_TEST_KEY}
  tts:
    name: elevenlabs
    api_key: el-test
    options:
      voice_id: rachel
      output_format: pcm_24000
  llm_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
    - name: ollama
      base_url: http://localhost:11434

failover:
  max_failures: 2

audio:
  backend: none
  frames_per_buffer: 2048

storage:
  driver: sqlite
  dsn: /tmp/parley-test.db

practice:
  transcription_grace: 1s
  call_timeout: 20s

scenarios:
  path: ./scenarios.yaml

user:
  language: Spanish
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "gm-secret")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.LLM.APIKey != "gm-secret" || cfg.Providers.Live.APIKey != "gm-secret" {
		t.Errorf("env expansion failed: llm key %q, live key %q", cfg.Providers.LLM.APIKey, cfg.Providers.Live.APIKey)
	}
	if got := config.OptString(cfg.Providers.TTS.Options, "voice_id"); got != "rachel" {
		t.Errorf("tts voice_id = %q", got)
	}
	if cfg.Audio.Backend != "none" || cfg.Audio.FramesPerBuffer != 2048 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Practice.TranscriptionGrace != time.Second || cfg.Practice.CallTimeout != 20*time.Second {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	// Unset fields take defaults.
	if cfg.Practice.AssessmentTimeout != config.DefaultAssessmentTimeout {
		t.Errorf("assessment timeout = %s", cfg.Practice.AssessmentTimeout)
	}
	if cfg.Audio.InputRate != config.DefaultInputRate || cfg.Audio.OutputRate != config.DefaultOutputRate {
		t.Errorf("rates = %d/%d", cfg.Audio.InputRate, cfg.Audio.OutputRate)
	}
	if fb := cfg.Providers.LLMFallbacks; len(fb) != 2 || fb[0].Name != "openai" || fb[1].BaseURL != "http://localhost:11434" {
		t.Errorf("llm fallbacks = %+v", fb)
	}
	if cfg.Failover.MaxFailures != 2 || cfg.Failover.Cooldown != config.DefaultFailoverCooldown {
		t.Errorf("failover = %+v", cfg.Failover)
	}
	if cfg.User.Language != "Spanish" || cfg.Scenarios.Path != "./scenarios.yaml" {
		t.Errorf("user/scenarios = %+v / %+v", cfg.User, cfg.Scenarios)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: gemini\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.ServiceName != config.DefaultServiceName {
		t.Errorf("service name = %q", cfg.Server.ServiceName)
	}
	if cfg.Audio.Backend != config.DefaultAudioBackend || cfg.Audio.FramesPerBuffer != config.DefaultFramesPerBuffer {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Storage.Driver != config.StorageSQLite || cfg.Storage.DSN != config.DefaultSQLitePath {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Practice.TranscriptionGrace != 1500*time.Millisecond || cfg.Practice.SpeechTimeout != 15*time.Second {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if cfg.User.Language != "English" {
		t.Errorf("language = %q", cfg.User.Language)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "example-key")
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Live.APIKey != "example-key" || cfg.Failover.MaxFailures != 3 {
		t.Errorf("providers = %+v, failover = %+v", cfg.Providers, cfg.Failover)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: gemini\n    temperature: 0.3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  llm:\n    name: openai\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("llm = %q", cfg.Providers.LLM.Name)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateAndMissing(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("mock", func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return want, nil
	})
	reg.RegisterAudio("none", func(context.Context, config.ProviderEntry) (audio.Backend, error) {
		return audio.Disabled{}, nil
	})

	p, err := reg.CreateLLM(context.Background(), config.ProviderEntry{Name: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want || gotEntry.Model != "m1" {
		t.Errorf("factory got %+v, returned %v", gotEntry, p)
	}
	if _, err := reg.CreateAudio(context.Background(), "none"); err != nil {
		t.Errorf("CreateAudio: %v", err)
	}

	_, err = reg.CreateLive(context.Background(), config.ProviderEntry{Name: "gemini"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLive err = %v, want ErrProviderNotRegistered", err)
	}
	if !strings.Contains(err.Error(), `live/"gemini"`) {
		t.Errorf("error should name the kind and provider, got: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no api key")
	reg.RegisterLive("gemini", func(context.Context, config.ProviderEntry) (live.Provider, error) {
		return nil, boom
	})
	if _, err := reg.CreateLive(context.Background(), config.ProviderEntry{Name: "gemini"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	f := func(context.Context, config.ProviderEntry) (llm.Provider, error) { return nil, nil }
	reg.RegisterLLM("openai", f)
	reg.RegisterLLM("gemini", f)
	got := reg.Names("llm")
	if len(got) != 2 || got[0] != "gemini" || got[1] != "openai" {
		t.Errorf("Names = %v, want [gemini openai]", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts) = %v", got)
	}
}
