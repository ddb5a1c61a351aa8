// Package store persists digest records and serves the latest one per key.
package store

import (
	"context"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/models"
)

// ErrNotFound is returned by Latest when no record exists for the key.
var ErrNotFound = apperr.New(apperr.KindNotFound, "no record for region and category")

// Store is the record repository used by ingestion and the read path.
type Store interface {
	// Save appends rec and returns its id. Records are never updated.
	Save(ctx context.Context, rec models.NewsRecord) (int64, error)
	// Latest returns the newest record for the key, ties broken by id.
	Latest(ctx context.Context, region models.Region, category models.Category) (models.StoredRecord, error)
	Ping(ctx context.Context) error
}
