package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/events"
	"github.com/DeafMist/news-digest/internal/llm"
	"github.com/DeafMist/news-digest/internal/notify"
	"github.com/DeafMist/news-digest/internal/prompt"
	"github.com/DeafMist/news-digest/internal/resolver"
)

// FromConfig assembles an orchestrator from the shared ingest settings.
// The returned publisher must be closed by the caller.
func FromConfig(ctx context.Context, cfg config.Ingest, store Saver, log *slog.Logger) (*Orchestrator, events.Publisher, error) {
	gen, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLMProvider,
		APIKey:      cfg.APIKey(),
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		Timeout:     cfg.LLMTimeout,
		Temperature: float32(cfg.LLMTemperature),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init llm: %w", err)
	}

	var catalog prompt.Catalog
	if cfg.PromptCatalog != "" {
		catalog, err = prompt.LoadCatalog(cfg.PromptCatalog)
		if err != nil {
			return nil, nil, err
		}
	}

	res, err := resolver.New(resolver.Config{
		Mode:           resolver.Mode(cfg.ResolverMode),
		RedirectHosts:  cfg.RedirectHosts,
		RequestTimeout: cfg.ResolveTimeout,
		Budget:         cfg.ResolveBudget,
		Workers:        cfg.ResolveWorkers,
		ValidateLinks:  cfg.ValidateLinks,
		HTMLFallback:   cfg.HTMLFallback,
	}, &http.Client{}, log)
	if err != nil {
		return nil, nil, err
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	deps := Deps{
		Prompts:   prompt.NewBuilder(catalog, cfg.OutputLanguage),
		Generator: gen,
		Resolver:  res,
		Store:     store,
		Events:    pub,
		Log:       log,
	}
	reporter, err := notify.FromToken(cfg.TelegramBotToken, cfg.TelegramAdminChatID, log)
	if err != nil {
		log.Warn("telegram reporter disabled", slog.Any("err", err))
	} else if reporter != nil {
		deps.Notifier = reporter
	}

	o, err := New(deps)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}
	log.Info("ingest ready",
		slog.String("llm", gen.Name()),
		slog.String("resolver", string(res.Mode())),
		slog.Bool("validate_links", cfg.ValidateLinks),
		slog.Bool("events", len(cfg.KafkaBrokers) > 0),
	)
	return o, pub, nil
}
