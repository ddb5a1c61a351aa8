// Package gateway shapes read requests for the latest digest: parameter
// validation, store lookup, wire projection and the cross-origin policy.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/validation"
)

// LatestReader is the slice of the store the read path needs.
type LatestReader interface {
	Latest(ctx context.Context, region models.Region, category models.Category) (models.StoredRecord, error)
}

// Response is the wire shape of the read endpoint.
type Response struct {
	Summary   string               `json:"summary"`
	Sources   []models.SourceEntry `json:"sources"`
	UpdatedAt string               `json:"updated_at"`
}

// Query holds the raw read parameters.
type Query struct {
	Region          string
	Category        string
	CategoryPresent bool
}

// Gateway serves the latest record for a validated key.
type Gateway struct {
	store LatestReader
	log   *slog.Logger
}

func New(store LatestReader, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{store: store, log: log.With("component", "gateway")}
}

// Latest validates q and returns the projection of the newest matching record.
// Store failures other than a missing record are logged and surfaced as a
// generic internal error.
func (g *Gateway) Latest(ctx context.Context, q Query) (Response, error) {
	region, err := validation.Region(q.Region)
	if err != nil {
		return Response{}, err
	}
	category, err := validation.CategoryOrDefault(q.Category, q.CategoryPresent)
	if err != nil {
		return Response{}, err
	}

	row, err := g.store.Latest(ctx, region, category)
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			return Response{}, apperr.New(apperr.KindNotFound, "no digest is available yet")
		}
		g.log.Error("load latest record",
			slog.String("region", string(region)),
			slog.String("category", string(category)),
			slog.Any("err", err),
		)
		return Response{}, apperr.Wrap(apperr.KindInternal, "failed to load digest", err)
	}

	sources, err := row.DecodeSources()
	if err != nil {
		g.log.Error("decode sources", slog.Int64("id", row.ID), slog.Any("err", err))
		return Response{}, apperr.Wrap(apperr.KindInternal, "failed to load digest", err)
	}

	return Response{
		Summary:   row.Summary,
		Sources:   sources,
		UpdatedAt: row.CreatedAt,
	}, nil
}
