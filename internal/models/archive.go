package models

import "time"

// EventRecordCreated is the event type emitted after a record is persisted.
const EventRecordCreated = "record.created"

// RecordEvent is published to the event stream after each successful ingestion.
type RecordEvent struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	RecordID  int64         `json:"record_id"`
	Region    string        `json:"region"`
	Category  string        `json:"category"`
	Summary   string        `json:"summary"`
	Sources   []SourceEntry `json:"sources"`
	CreatedAt string        `json:"created_at"`
	EmittedAt time.Time     `json:"emitted_at"`
}

// ArchiveDocument is the searchable projection stored in Elasticsearch.
type ArchiveDocument struct {
	ID        string        `json:"id"`
	RecordID  int64         `json:"record_id"`
	Region    string        `json:"region"`
	Category  string        `json:"category"`
	Titles    []string      `json:"titles"`
	Text      string        `json:"text"`
	Insight   string        `json:"insight"`
	Keywords  []string      `json:"keywords"`
	Sources   []SourceEntry `json:"sources"`
	Summary   string        `json:"summary"`
	CreatedAt time.Time     `json:"created_at"`
}
