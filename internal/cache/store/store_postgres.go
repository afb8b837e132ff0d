package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tellus/internal/domain"
	"tellus/pkg/platform/sentinel"
)

// PostgresStore persists cache entries in PostgreSQL for deployments that
// want the cache to survive restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed entry store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the cache table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS indicator_cache (
			fingerprint TEXT PRIMARY KEY,
			payload     JSONB NOT NULL,
			fetched_at  TIMESTAMPTZ NOT NULL,
			ttl_seconds BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure cache schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		raw        []byte
		fetchedAt  time.Time
		ttlSeconds int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT payload, fetched_at, ttl_seconds
		FROM indicator_cache
		WHERE fingerprint = $1`, fingerprint,
	).Scan(&raw, &fetchedAt, &ttlSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, unavailable("postgres get", err)
	}

	var payload []domain.Observation
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode cache payload: %w", err)
	}

	return &Entry{
		Fingerprint: fingerprint,
		Payload:     payload,
		FetchedAt:   fetchedAt,
		TTL:         time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return fmt.Errorf("entry with fingerprint is required")
	}

	raw, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO indicator_cache (fingerprint, payload, fetched_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload     = EXCLUDED.payload,
			fetched_at  = EXCLUDED.fetched_at,
			ttl_seconds = EXCLUDED.ttl_seconds`,
		entry.Fingerprint, raw, entry.FetchedAt, int64(entry.TTL/time.Second))
	if err != nil {
		return unavailable("postgres put", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM indicator_cache WHERE fingerprint = $1`, fingerprint); err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}
