package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/logger"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, cfg.Archive)
	if err != nil {
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	if esClient == nil {
		log.Info("shutdown signal received during startup")
		return
	}
	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Cleanup.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.String("index", cfg.Archive.ElasticsearchIndex),
		slog.Duration("interval", cfg.Cleanup.Interval),
		slog.Duration("max_age", cfg.Cleanup.MaxAge),
	)

	// first pass right away; a failure just waits for the next tick
	runOnce(ctx, log, esClient, cfg.Cleanup)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg.Cleanup)
		}
	}
}

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// connect retries the cluster with capped exponential backoff. A nil client
// with a nil error means ctx was cancelled first.
func connect(ctx context.Context, log *slog.Logger, cfg config.Archive) (*elasticsearch.Client, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = esClient.Ping(pingCtx)
			cancel()
			if err == nil {
				return esClient, nil
			}
		}
		lastErr = err
		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, nil
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}
	return nil, lastErr
}

func runOnce(ctx context.Context, log *slog.Logger, esClient pruner, cfg config.Cleanup) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := esClient.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old documents found")
	}
	return deleted
}
