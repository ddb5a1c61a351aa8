package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/DeafMist/news-digest/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS news (
	id         BIGSERIAL PRIMARY KEY,
	region     TEXT NOT NULL,
	category   TEXT NOT NULL,
	summary    TEXT NOT NULL,
	sources    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS news_key_created_idx ON news (region, category, created_at DESC, id DESC);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres stores records in the news table.
type Postgres struct {
	db *sqlx.DB
}

// Connect opens a Postgres connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the news table and its lookup index when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec models.NewsRecord) (int64, error) {
	row, err := rec.ToStored()
	if err != nil {
		return 0, err
	}

	query, args, err := insertQuery(row)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := p.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

func (p *Postgres) Latest(ctx context.Context, region models.Region, category models.Category) (models.StoredRecord, error) {
	query, args, err := latestQuery(region, category)
	if err != nil {
		return models.StoredRecord{}, fmt.Errorf("build select: %w", err)
	}

	var row models.StoredRecord
	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StoredRecord{}, ErrNotFound
		}
		return models.StoredRecord{}, fmt.Errorf("select latest: %w", err)
	}
	return row, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func insertQuery(row models.StoredRecord) (string, []any, error) {
	return psql.Insert("news").
		Columns("region", "category", "summary", "sources", "created_at").
		Values(row.Region, row.Category, row.Summary, row.Sources, row.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
}

func latestQuery(region models.Region, category models.Category) (string, []any, error) {
	return psql.Select("id", "region", "category", "summary", "sources", "created_at").
		From("news").
		Where(sq.Eq{"region": string(region), "category": string(category)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
}
