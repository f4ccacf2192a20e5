package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/llmcache/internal/llmcache"
)

// Postgres keeps entries in the llm_cache table created by migrations/.
// Expired rows are invisible to Get and removed by Purge.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `
		SELECT value
		FROM llm_cache
		WHERE key = $1
		  AND expires_at > NOW()
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, llmcache.ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: query llm_cache: %w", llmcache.ErrStoreUnavailable, err)
	}
	return value, nil
}

// Set upserts value. A non-positive ttl stores nothing.
func (s *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO llm_cache (key, value, expires_at)
		VALUES ($1, $2, NOW() + make_interval(secs => $3))
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at
	`, key, value, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("%w: upsert llm_cache: %w", llmcache.ErrStoreUnavailable, err)
	}
	return nil
}

// Purge deletes expired rows.
func (s *Postgres) Purge(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM llm_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge llm_cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
