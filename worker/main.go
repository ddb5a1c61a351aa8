package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/processing"
)

type archiveIndexer interface {
	IndexArchive(ctx context.Context, doc models.ArchiveDocument) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.Archive.ElasticsearchAddr, cfg.Archive.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Warn("ensure archive index", slog.Any("err", err))
	}

	cache := dedupe.NewCache(cfg.Consumer.DedupeCapacity, cfg.Consumer.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Consumer.KafkaBrokers,
		Topic:          cfg.Consumer.KafkaTopic,
		GroupID:        cfg.Consumer.KafkaConsumer,
		QueueCapacity:  cfg.Consumer.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.Consumer.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Consumer.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.Consumer.KafkaTopic),
		slog.String("group", cfg.Consumer.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, &cfg.Consumer, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ forwards msg with error context, retrying with exponential backoff.
func sendToDLQ(ctx context.Context, log *slog.Logger, w *kafka.Writer, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

func processMessage(ctx context.Context, log *slog.Logger, indexer archiveIndexer, cache *dedupe.Cache, cfg *config.Consumer, msg kafka.Message) error {
	var ev models.RecordEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.Type != "" && ev.Type != models.EventRecordCreated {
		log.Debug("skipping event", slog.String("type", ev.Type))
		return nil
	}

	doc, err := buildDocument(ev, cfg.KeywordLimit, cfg.KeywordMinLength)
	if err != nil {
		return err
	}

	if cache.IsSeen(doc.ID) {
		log.Debug("duplicate record", slog.String("id", doc.ID))
		return nil
	}

	if err := indexer.IndexArchive(ctx, doc); err != nil {
		return err
	}

	cache.MarkSeen(doc.ID)
	log.Info("archived record",
		slog.String("id", doc.ID),
		slog.Int64("record_id", doc.RecordID),
		slog.String("key", doc.Region+"/"+doc.Category),
	)
	return nil
}

// buildDocument flattens a stored record into its searchable archive form.
func buildDocument(ev models.RecordEvent, keywordLimit, keywordMinLen int) (models.ArchiveDocument, error) {
	if ev.Region == "" || ev.Category == "" {
		return models.ArchiveDocument{}, errors.New("event without region or category")
	}
	rec, err := models.StoredRecord{Summary: ev.Summary, CreatedAt: ev.CreatedAt}.DecodeSummary()
	if err != nil {
		return models.ArchiveDocument{}, err
	}

	titles := make([]string, 0, len(rec.Items))
	bodies := make([]string, 0, len(rec.Items))
	for _, item := range rec.Items {
		if title := strings.TrimSpace(item.Title); title != "" {
			titles = append(titles, title)
		}
		if body := strings.TrimSpace(item.Body); body != "" {
			bodies = append(bodies, body)
		}
	}
	text := strings.Join(bodies, "\n")

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = ev.EmittedAt.UTC()
	}

	cleaned := processing.CleanText(strings.Join(titles, " ") + " " + text)
	doc := models.ArchiveDocument{
		ID:        processing.BuildDocumentID(ev.Region, ev.Category, ev.CreatedAt),
		RecordID:  ev.RecordID,
		Region:    ev.Region,
		Category:  ev.Category,
		Titles:    titles,
		Text:      text,
		Insight:   rec.Insight,
		Keywords:  processing.ExtractKeywords(cleaned, keywordLimit, keywordMinLen),
		Sources:   ev.Sources,
		Summary:   ev.Summary,
		CreatedAt: createdAt,
	}
	if ev.CreatedAt == "" {
		doc.ID = uuid.NewString()
	}
	return doc, nil
}
