package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists the booking-creation idempotency keys clients
// may supply on retry, so a retried create returns the original booking
// instead of creating a second one.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewIdempotencyStore(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IdempotencyStore{pool: pool, ttl: ttl}
}

func (s *IdempotencyStore) TTL() time.Duration {
	return s.ttl
}

func (s *IdempotencyStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT PRIMARY KEY,
	booking_id TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idempotency_keys_expires_idx ON idempotency_keys(expires_at);
`)
	return err
}

func (s *IdempotencyStore) Remember(ctx context.Context, key, bookingID string) error {
	if key == "" || bookingID == "" {
		return nil
	}
	exp := time.Now().Add(s.ttl)
	_, err := s.pool.Exec(ctx, `
INSERT INTO idempotency_keys (key, booking_id, expires_at)
VALUES ($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET booking_id=EXCLUDED.booking_id, expires_at=EXCLUDED.expires_at
`, key, bookingID, exp)
	return err
}

func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	var bookingID string
	var expires time.Time
	err := s.pool.QueryRow(ctx, `
SELECT booking_id, expires_at FROM idempotency_keys WHERE key = $1
`, key).Scan(&bookingID, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if time.Now().After(expires) {
		return "", false, nil
	}
	return bookingID, true, nil
}
