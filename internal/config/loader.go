package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq"},
	"live":  {"gemini"},
	"tts":   {"gemini", "elevenlabs"},
	"audio": {"portaudio", "none"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultServiceName        = "parley"
	DefaultAudioBackend       = "portaudio"
	DefaultInputRate          = 16000
	DefaultOutputRate         = 24000
	DefaultFramesPerBuffer    = 4096
	DefaultSQLitePath         = "parley.db"
	DefaultLanguage           = "English"
	DefaultTranscriptionGrace = 1500 * time.Millisecond
	DefaultCallTimeout        = 30 * time.Second
	DefaultAssessmentTimeout  = 45 * time.Second
	DefaultSpeechTimeout      = 15 * time.Second
	DefaultFailoverFailures   = 3
	DefaultFailoverCooldown   = 30 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = DefaultServiceName
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
	if cfg.Audio.InputRate == 0 {
		cfg.Audio.InputRate = DefaultInputRate
	}
	if cfg.Audio.OutputRate == 0 {
		cfg.Audio.OutputRate = DefaultOutputRate
	}
	if cfg.Audio.FramesPerBuffer == 0 {
		cfg.Audio.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == StorageSQLite {
		cfg.Storage.DSN = DefaultSQLitePath
	}
	if cfg.Practice.TranscriptionGrace == 0 {
		cfg.Practice.TranscriptionGrace = DefaultTranscriptionGrace
	}
	if cfg.Practice.CallTimeout == 0 {
		cfg.Practice.CallTimeout = DefaultCallTimeout
	}
	if cfg.Practice.AssessmentTimeout == 0 {
		cfg.Practice.AssessmentTimeout = DefaultAssessmentTimeout
	}
	if cfg.Practice.SpeechTimeout == 0 {
		cfg.Practice.SpeechTimeout = DefaultSpeechTimeout
	}
	if cfg.Failover.MaxFailures == 0 {
		cfg.Failover.MaxFailures = DefaultFailoverFailures
	}
	if cfg.Failover.Cooldown == 0 {
		cfg.Failover.Cooldown = DefaultFailoverCooldown
	}
	if cfg.User.Language == "" {
		cfg.User.Language = DefaultLanguage
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.Assessor.Name)
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, e := range cfg.Providers.LLMFallbacks {
		if !e.Configured() {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	for i, e := range cfg.Providers.TTSFallbacks {
		if !e.Configured() {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", e.Name)
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && !cfg.Providers.TTS.Configured() {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}
	if !cfg.Providers.LLM.Configured() {
		errs = append(errs, errors.New("providers.llm is required; it scores turns and writes the coach's lines"))
	}
	if !cfg.Providers.Live.Configured() && cfg.Audio.Backend != "none" {
		slog.Warn("providers.live is not configured; voice turns will fail to connect, use text input")
	}
	if !cfg.Providers.TTS.Configured() {
		slog.Info("providers.tts is not configured; coach lines will be shown but not spoken")
	}

	// Audio
	if cfg.Audio.Backend != "" && !slices.Contains(ValidProviderNames["audio"], cfg.Audio.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio, none", cfg.Audio.Backend))
	}
	if cfg.Audio.InputRate < 0 || cfg.Audio.OutputRate < 0 {
		errs = append(errs, errors.New("audio sample rates must be positive"))
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must be positive", cfg.Audio.FramesPerBuffer))
	}

	// Storage
	if cfg.Storage.Driver != "" && !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: sqlite, pgx, memory", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == StoragePostgres && cfg.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required when storage.driver is pgx"))
	}

	// Practice
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"practice.transcription_grace", cfg.Practice.TranscriptionGrace},
		{"practice.call_timeout", cfg.Practice.CallTimeout},
		{"practice.assessment_timeout", cfg.Practice.AssessmentTimeout},
		{"practice.speech_timeout", cfg.Practice.SpeechTimeout},
		{"failover.cooldown", cfg.Failover.Cooldown},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s %s must not be negative", d.name, d.v))
		}
	}

	if cfg.Failover.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("failover.max_failures %d must not be negative", cfg.Failover.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
