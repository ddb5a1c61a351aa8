package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Region is a country code the digest is produced for.
type Region string

const (
	RegionUS Region = "us"
	RegionKR Region = "kr"
)

// Regions lists every supported region in sweep order.
var Regions = []Region{RegionUS, RegionKR}

// Category narrows a digest to one topic.
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryTech          Category = "tech"
	CategoryEconomy       Category = "economy"
	CategoryEntertainment Category = "entertainment"
)

// Categories lists every supported category in sweep order.
var Categories = []Category{CategoryGeneral, CategoryTech, CategoryEconomy, CategoryEntertainment}

// TimestampLayout is the fixed-width UTC layout used for persisted created_at values.
// Fixed width keeps lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// GlossaryEntry explains one hard term used in an item.
type GlossaryEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// NewsItem is a single summarized story.
type NewsItem struct {
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	SourceLabel string          `json:"source_label"`
	SourceURL   string          `json:"source_url"`
	Glossary    []GlossaryEntry `json:"glossary"`
}

// NewsRecord is the structured digest for one (region, category) run.
type NewsRecord struct {
	Region    Region     `json:"region"`
	Category  Category   `json:"category"`
	Items     []NewsItem `json:"items"`
	Insight   string     `json:"insight"`
	CreatedAt time.Time  `json:"-"`
}

// SourceEntry is the denormalized source list served next to the summary.
type SourceEntry struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// GroundingURL is a search citation returned by the model call.
type GroundingURL struct {
	URI   string
	Title string
}

// StoredRecord mirrors one row of the news table.
type StoredRecord struct {
	ID        int64  `db:"id"`
	Region    string `db:"region"`
	Category  string `db:"category"`
	Summary   string `db:"summary"`
	Sources   string `db:"sources"`
	CreatedAt string `db:"created_at"`
}

// Sources projects items with a link into source entries, keeping item order.
func (r NewsRecord) Sources() []SourceEntry {
	return lo.FilterMap(r.Items, func(item NewsItem, _ int) (SourceEntry, bool) {
		return SourceEntry{Title: item.SourceLabel, Link: item.SourceURL}, item.SourceURL != ""
	})
}

// ToStored serializes the record into its persisted row shape.
func (r NewsRecord) ToStored() (StoredRecord, error) {
	summary, err := json.Marshal(r)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("marshal summary: %w", err)
	}
	sources, err := json.Marshal(r.Sources())
	if err != nil {
		return StoredRecord{}, fmt.Errorf("marshal sources: %w", err)
	}
	return StoredRecord{
		Region:    string(r.Region),
		Category:  string(r.Category),
		Summary:   string(summary),
		Sources:   string(sources),
		CreatedAt: FormatTimestamp(r.CreatedAt),
	}, nil
}

// DecodeSources parses the persisted sources column.
func (s StoredRecord) DecodeSources() ([]SourceEntry, error) {
	if s.Sources == "" {
		return []SourceEntry{}, nil
	}
	var out []SourceEntry
	if err := json.Unmarshal([]byte(s.Sources), &out); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if out == nil {
		out = []SourceEntry{}
	}
	return out, nil
}

// DecodeSummary parses the persisted summary column back into a record.
func (s StoredRecord) DecodeSummary() (NewsRecord, error) {
	var rec NewsRecord
	if err := json.Unmarshal([]byte(s.Summary), &rec); err != nil {
		return NewsRecord{}, fmt.Errorf("decode summary: %w", err)
	}
	rec.CreatedAt = ParseTimestamp(s.CreatedAt)
	return rec, nil
}

// FormatTimestamp renders ts with TimestampLayout in UTC.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts the persisted layout and a few legacy ones.
// It returns the zero time when nothing matches.
func ParseTimestamp(raw string) time.Time {
	formats := []string{
		TimestampLayout,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
