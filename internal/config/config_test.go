package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SCANHELPER_PROVIDER", "SCANHELPER_TEMPERATURE", "SCANHELPER_HTTP_TIMEOUT",
		"SCANHELPER_DATA_DIR", "SCANHELPER_DB_PATH", "SCANHELPER_PROMPTS_FILE", "SCANHELPER_SESSION_TTL", "PORT",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"OLLAMA_URL", "OLLAMA_HOST", "OLLAMA_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, providers.OpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaURL)
	assert.Equal(t, filepath.Join("./data", "scanhelper.db"), cfg.DBPath)
	assert.Zero(t, cfg.HTTPTimeout)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.OpenAIKey)

	preset, ok := cfg.Prompts.Get("")
	require.True(t, ok)
	assert.Contains(t, preset.System, "Mathematics tutor")
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCANHELPER_PROVIDER", "Ollama")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "llava:13b")
	t.Setenv("SCANHELPER_TEMPERATURE", "0.7")
	t.Setenv("SCANHELPER_HTTP_TIMEOUT", "90")
	t.Setenv("SCANHELPER_DATA_DIR", "/var/lib/scanhelper")
	t.Setenv("SCANHELPER_SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, providers.Ollama, cfg.Provider)
	assert.Equal(t, "llava:13b", cfg.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.OllamaURL)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 90*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "/var/lib/scanhelper/scanhelper.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown provider", "SCANHELPER_PROVIDER", "anthropic"},
		{"temperature", "SCANHELPER_TEMPERATURE", "3"},
		{"timeout", "SCANHELPER_HTTP_TIMEOUT", "-5s"},
		{"session ttl", "SCANHELPER_SESSION_TTL", "-1h"},
		{"prompts file", "SCANHELPER_PROMPTS_FILE", "/does/not/exist.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: physics
presets:
  physics:
    system: You are a Physics tutor.
    user: This image contains a physics problem.
`), 0o600))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "physics"}, p.Subjects())

	preset, ok := p.Get("")
	require.True(t, ok)
	assert.Equal(t, "You are a Physics tutor.", preset.System)

	_, ok = p.Get("chemistry")
	assert.False(t, ok)
}

func TestLoadPrompts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "presets: [unclosed"},
		{"missing user", "presets:\n  art:\n    system: x\n"},
		{"unknown default", "default: history\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prompts.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadPrompts(path)
			assert.Error(t, err)
		})
	}
}
