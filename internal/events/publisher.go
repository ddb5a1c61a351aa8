// Package events publishes record lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/models"
)

// Publisher emits events after a record has been persisted.
type Publisher interface {
	Publish(ctx context.Context, ev models.RecordEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events as JSON keyed by region/category, so one key stays on one partition.
type Kafka struct {
	w messageWriter
}

// NewKafka creates a publisher for topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		MaxAttempts:            3,
	})
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(w messageWriter) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) Publish(ctx context.Context, ev models.RecordEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Region + "/" + ev.Category),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
		Time: ev.EmittedAt,
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.RecordEvent) error { return nil }
func (Nop) Close() error { return nil }

// RecordCreated builds the event for a freshly stored row.
func RecordCreated(row models.StoredRecord, sources []models.SourceEntry, now time.Time) models.RecordEvent {
	if sources == nil {
		sources = []models.SourceEntry{}
	}
	return models.RecordEvent{
		ID:        uuid.NewString(),
		Type:      models.EventRecordCreated,
		RecordID:  row.ID,
		Region:    row.Region,
		Category:  row.Category,
		Summary:   row.Summary,
		Sources:   sources,
		CreatedAt: row.CreatedAt,
		EmittedAt: now.UTC(),
	}
}
