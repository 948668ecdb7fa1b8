package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const table = "digest_cache"

const schema = `CREATE TABLE IF NOT EXISTS digest_cache (
    cache_key   TEXT PRIMARY KEY,
    topic       TEXT NOT NULL,
    sources     TEXT[] NOT NULL DEFAULT '{}',
    payload     JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    ttl_seconds BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS digest_cache_created_at_idx ON digest_cache (created_at DESC)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresBackend persists cached digests into Postgres.
type PostgresBackend struct {
	db *sql.DB
}

var _ ports.CacheBackend = (*PostgresBackend)(nil)

// NewPostgresBackend wires a sql.DB implementation.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Open connects through lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the cache table when missing.
func (r *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load returns the entry stored under key.
func (r *PostgresBackend) Load(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	query, args, err := psql.
		Select("payload", "created_at", "ttl_seconds").
		From(table).
		Where(sq.Eq{"cache_key": key}).
		ToSql()
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("build select: %w", err)
	}

	entry, err := scanEntry(key, r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Save upserts the entry under entry.Key.
func (r *PostgresBackend) Save(ctx context.Context, entry domain.CacheEntry) error {
	payload, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}

	sources := entry.Value.Metadata.Sources
	if sources == nil {
		sources = []string{}
	}

	query, args, err := psql.
		Insert(table).
		Columns("cache_key", "topic", "sources", "payload", "created_at", "ttl_seconds").
		Values(entry.Key, entry.Value.Topic, pq.StringArray(sources), payload, entry.CreatedAt.UTC(), int64(entry.TTL/time.Second)).
		Suffix(`ON CONFLICT (cache_key) DO UPDATE
              SET topic = EXCLUDED.topic,
                  sources = EXCLUDED.sources,
                  payload = EXCLUDED.payload,
                  created_at = EXCLUDED.created_at,
                  ttl_seconds = EXCLUDED.ttl_seconds`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert digest: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *PostgresBackend) Delete(ctx context.Context, key string) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"cache_key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete digest: %w", err)
	}
	return nil
}

// DeleteAll empties the cache table.
func (r *PostgresBackend) DeleteAll(ctx context.Context) error {
	query, args, err := psql.Delete(table).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete digests: %w", err)
	}
	return nil
}

// List returns every stored entry, newest first.
func (r *PostgresBackend) List(ctx context.Context) ([]domain.CacheEntry, error) {
	query, args, err := psql.
		Select("cache_key", "payload", "created_at", "ttl_seconds").
		From(table).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}

	var result []domain.CacheEntry
	for rows.Next() {
		var (
			key     string
			payload []byte
			created time.Time
			ttl     int64
		)
		if err := rows.Scan(&key, &payload, &created, &ttl); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		entry, err := decodeEntry(key, payload, created, ttl)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func scanEntry(key string, row *sql.Row) (domain.CacheEntry, error) {
	var (
		payload []byte
		created time.Time
		ttl     int64
	)
	if err := row.Scan(&payload, &created, &ttl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CacheEntry{}, err
		}
		return domain.CacheEntry{}, fmt.Errorf("scan digest: %w", err)
	}
	return decodeEntry(key, payload, created, ttl)
}

func decodeEntry(key string, payload []byte, created time.Time, ttl int64) (domain.CacheEntry, error) {
	var digest domain.Digest
	if err := json.Unmarshal(payload, &digest); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("decode digest %s: %w", key, err)
	}
	return domain.CacheEntry{
		Key:       key,
		Value:     digest,
		CreatedAt: created.UTC(),
		TTL:       time.Duration(ttl) * time.Second,
	}, nil
}
