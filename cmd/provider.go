package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/scanhelper/scanhelper/internal/config"
	"github.com/scanhelper/scanhelper/internal/gemini"
	"github.com/scanhelper/scanhelper/internal/ollama"
	"github.com/scanhelper/scanhelper/internal/openai"
	"github.com/scanhelper/scanhelper/internal/providers"
)

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.provider != "" {
		cfg.Provider = strings.ToLower(opts.provider)
		cfg.Model = config.DefaultModel(cfg.Provider)
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newProvider(cfg *config.Config) (providers.Provider, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	switch cfg.Provider {
	case providers.OpenAI:
		return openai.New(openai.Options{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
		}), nil
	case providers.Ollama:
		return ollama.New(cfg.OllamaURL, httpClient), nil
	case providers.Gemini:
		// the SDK drops the API key when given an HTTP client
		return gemini.New(cfg.GeminiKey), nil
	default:
		return nil, fmt.Errorf("%w: %q", providers.ErrUnsupportedProvider, cfg.Provider)
	}
}
