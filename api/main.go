package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/gateway"
	"github.com/DeafMist/news-digest/internal/httpapi"
	"github.com/DeafMist/news-digest/internal/ingest"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/ratelimit"
	"github.com/DeafMist/news-digest/internal/store"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := store.Connect(ctx, cfg.Store.DSN())
	if err != nil {
		log.Error("connect database", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Error("ensure schema", slog.Any("err", err))
		os.Exit(1)
	}

	orchestrator, publisher, err := ingest.FromConfig(ctx, cfg.Ingest, db, log)
	if err != nil {
		log.Error("init ingest", slog.Any("err", err))
		os.Exit(1)
	}
	defer publisher.Close()

	limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
	go sweepLimiter(ctx, limiter, cfg.Server.RateWindow)

	deps := httpapi.Deps{
		Gateway:   gateway.New(db, log),
		Limiter:   limiter,
		CORS:      gateway.NewCORS(cfg.Server.AllowedOrigins),
		Refresher: orchestrator,
		Store:     db,
		Log:       log,
	}
	if cfg.Archive.Enabled() {
		esClient, err := elasticsearch.New(cfg.Archive.ElasticsearchAddr, cfg.Archive.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		deps.Archive = esClient
	}

	router := httpapi.NewRouter(deps, httpapi.Options{
		CronSecret:     cfg.Server.CronSecret,
		RefreshTimeout: cfg.Server.RefreshTimeout,
		DefaultPage:    cfg.Server.DefaultPage,
		MaxPage:        cfg.Server.MaxPage,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.BindAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a refresh holds the connection for the whole sweep
		WriteTimeout: cfg.Server.RefreshTimeout + 15*time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.Server.BindAddr),
			slog.Bool("archive", cfg.Archive.Enabled()),
			slog.Bool("cron_enabled", cfg.Server.CronSecret != ""),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// sweepLimiter drops idle clients so the limiter does not grow without bound.
func sweepLimiter(ctx context.Context, l *ratelimit.Limiter, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
