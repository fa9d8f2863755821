// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/scanhelper/scanhelper/internal/providers"
)

// Config holds all application configuration.
type Config struct {
	Provider    string
	Model       string
	Temperature float64
	HTTPTimeout time.Duration // 0 = transport default
	Port        string
	SessionTTL  time.Duration

	OpenAIKey     string
	OpenAIBaseURL string
	OllamaURL     string
	GeminiKey     string

	DataDir     string
	DBPath      string
	PromptsFile string

	Prompts *Prompts
}

// Load reads configuration from environment variables, plus prompt presets
// from SCANHELPER_PROMPTS_FILE when set.
func Load() (*Config, error) {
	dataDir := getEnv("SCANHELPER_DATA_DIR", "./data")
	cfg := &Config{
		Provider:      strings.ToLower(getEnv("SCANHELPER_PROVIDER", providers.OpenAI)),
		Temperature:   getEnvFloat("SCANHELPER_TEMPERATURE", 0.2),
		HTTPTimeout:   getEnvDuration("SCANHELPER_HTTP_TIMEOUT", 0),
		Port:          getEnv("PORT", "8888"),
		SessionTTL:    getEnvDuration("SCANHELPER_SESSION_TTL", 2*time.Hour),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaURL:     getEnv("OLLAMA_URL", getEnv("OLLAMA_HOST", "http://localhost:11434")),
		GeminiKey:     getEnv("GEMINI_API_KEY", ""),
		DataDir:       dataDir,
		DBPath:        getEnv("SCANHELPER_DB_PATH", filepath.Join(dataDir, "scanhelper.db")),
		PromptsFile:   getEnv("SCANHELPER_PROMPTS_FILE", ""),
	}
	cfg.Model = DefaultModel(cfg.Provider)

	prompts := DefaultPrompts()
	if cfg.PromptsFile != "" {
		loaded, err := LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}
	cfg.Prompts = prompts

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set. API keys
// are not required here: a missing key is reported per request.
func (c *Config) Validate() error {
	switch c.Provider {
	case providers.OpenAI, providers.Ollama, providers.Gemini:
	default:
		return fmt.Errorf("%w: %q", providers.ErrUnsupportedProvider, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("SCANHELPER_TEMPERATURE must be between 0 and 2")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("SCANHELPER_HTTP_TIMEOUT cannot be negative")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SCANHELPER_SESSION_TTL cannot be negative")
	}
	if c.DBPath == "" {
		return fmt.Errorf("SCANHELPER_DB_PATH cannot be empty")
	}
	if c.Prompts == nil || len(c.Prompts.Presets) == 0 {
		return fmt.Errorf("at least one prompt preset is required")
	}
	return nil
}

// DefaultModel returns the model for provider, honouring the per-provider
// model env var.
func DefaultModel(provider string) string {
	switch provider {
	case providers.OpenAI:
		return getEnv("OPENAI_MODEL", "gpt-4o")
	case providers.Ollama:
		return getEnv("OLLAMA_MODEL", "mistral-small3.2:24b")
	case providers.Gemini:
		return getEnv("GEMINI_MODEL", "gemini-1.5-flash")
	default:
		return ""
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
