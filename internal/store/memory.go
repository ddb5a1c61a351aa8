package store

import (
	"context"
	"sync"

	"github.com/DeafMist/news-digest/internal/models"
)

// Memory keeps records in process. Used by tests and by newsctl when no
// database is configured.
type Memory struct {
	mu     sync.RWMutex
	rows   []models.StoredRecord
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Save(_ context.Context, rec models.NewsRecord) (int64, error) {
	row, err := rec.ToStored()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, row)
	return row.ID, nil
}

func (m *Memory) Latest(_ context.Context, region models.Region, category models.Category) (models.StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  models.StoredRecord
		found bool
	)
	for _, row := range m.rows {
		if row.Region != string(region) || row.Category != string(category) {
			continue
		}
		if !found || row.CreatedAt > best.CreatedAt || (row.CreatedAt == best.CreatedAt && row.ID > best.ID) {
			best, found = row, true
		}
	}
	if !found {
		return models.StoredRecord{}, ErrNotFound
	}
	return best, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len reports how many records have been saved.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
