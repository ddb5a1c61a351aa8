// Package llm wraps the text-generation backends a digest can be produced with.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/prompt"
)

// Response is the raw model output plus any search citations it carried.
type Response struct {
	Text      string
	Grounding []models.GroundingURL
}

// Generator produces one digest response for a prompt.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (Response, error)
	Name() string
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and tunes a backend.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float32
}

// New returns the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
