package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/parley/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "missing llm",
			yaml: "audio:\n  backend: none\n",
			want: []string{"providers.llm is required"},
		},
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\nproviders:\n  llm:\n    name: gemini\n",
			want: []string{"server.log_level"},
		},
		{
			name: "bad audio backend",
			yaml: "providers:\n  llm:\n    name: gemini\naudio:\n  backend: alsa\n",
			want: []string{"audio.backend"},
		},
		{
			name: "bad storage driver",
			yaml: "providers:\n  llm:\n    name: gemini\nstorage:\n  driver: mysql\n",
			want: []string{"storage.driver"},
		},
		{
			name: "pgx needs dsn",
			yaml: "providers:\n  llm:\n    name: gemini\nstorage:\n  driver: pgx\n",
			want: []string{"storage.dsn is required"},
		},
		{
			name: "negative timeout",
			yaml: "providers:\n  llm:\n    name: gemini\npractice:\n  call_timeout: -1s\n",
			want: []string{"practice.call_timeout"},
		},
		{
			name: "unnamed fallback",
			yaml: "providers:\n  llm:\n    name: gemini\n  llm_fallbacks:\n    - model: gpt-4o\n",
			want: []string{"providers.llm_fallbacks[0].name is required"},
		},
		{
			name: "tts fallback without tts",
			yaml: "providers:\n  llm:\n    name: gemini\n  tts_fallbacks:\n    - name: gemini\n",
			want: []string{"providers.tts_fallbacks requires providers.tts"},
		},
		{
			name: "negative cooldown",
			yaml: "providers:\n  llm:\n    name: gemini\nfailover:\n  cooldown: -5s\n",
			want: []string{"failover.cooldown"},
		},
		{
			name: "multiple failures joined",
			yaml: "server:\n  log_level: loud\nstorage:\n  driver: mysql\n",
			want: []string{"server.log_level", "storage.driver", "providers.llm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_UnknownProviderIsNotFatal(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "my-private-llm"},
	}}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unknown provider name should only warn, got: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Audio:   config.AudioConfig{Backend: "none", InputRate: 8000},
		Storage: config.StorageConfig{Driver: config.StorageMemory},
	}
	config.ApplyDefaults(cfg)
	if cfg.Audio.Backend != "none" || cfg.Audio.InputRate != 8000 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Storage.DSN != "" {
		t.Errorf("memory driver got dsn %q", cfg.Storage.DSN)
	}
}
