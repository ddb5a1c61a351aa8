package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/prompt"
)

const DefaultOllamaModel = "llama3"

// Ollama generates digests with a local model. No grounding is returned.
type Ollama struct {
	client *api.Client
	cfg    Config
}

func NewOllama(cfg Config) (*Ollama, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if !strings.Contains(cfg.BaseURL, "://") {
		cfg.BaseURL = "http://" + cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return &Ollama{client: api.NewClient(base, &http.Client{}), cfg: cfg}, nil
}

func (o *Ollama) Name() string { return ProviderOllama + "/" + o.cfg.Model }

func (o *Ollama) Generate(ctx context.Context, p prompt.Prompt) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  o.cfg.Model,
		System: p.System,
		Prompt: p.User,
		Format: json.RawMessage(`"json"`),
	}
	if o.cfg.Temperature > 0 {
		req.Options = map[string]any{"temperature": o.cfg.Temperature}
	}

	var b strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindUpstream, "ollama generate", err)
	}
	return Response{Text: b.String()}, nil
}
