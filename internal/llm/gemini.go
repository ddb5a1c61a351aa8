package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/prompt"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API with Google Search grounding enabled.
type Gemini struct {
	client *genai.Client
	model  string
	cfg    Config
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, cfg: cfg}, nil
}

func (g *Gemini) Name() string { return ProviderGemini + "/" + g.model }

func (g *Gemini) Generate(ctx context.Context, p prompt.Prompt) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	gc := &genai.GenerateContentConfig{
		// system instructions carry no role
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(p.System)}},
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if g.cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(g.cfg.Temperature)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), gc)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindUpstream, "gemini generate", err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, apperr.New(apperr.KindUpstream, "gemini returned no text")
	}
	return Response{Text: text, Grounding: groundingURLs(resp)}, nil
}

// groundingURLs collects the web citations of every candidate, in order.
func groundingURLs(resp *genai.GenerateContentResponse) []models.GroundingURL {
	var out []models.GroundingURL
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out = append(out, models.GroundingURL{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	return out
}
