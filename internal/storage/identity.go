package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/dispatch"
)

// IdentityStore persists bearer tokens issued to identities, backing the
// Postgres-mode AuthProvider for deployments without a JWT secret rotation
// story of their own.
type IdentityStore struct {
	pool *pgxpool.Pool
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

func (s *IdentityStore) Save(ctx context.Context, token string, ident dispatch.Identity, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO identities (token, user_id, user_type, phone, expires_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (token) DO UPDATE SET user_id=EXCLUDED.user_id, user_type=EXCLUDED.user_type,
	phone=EXCLUDED.phone, expires_at=EXCLUDED.expires_at
`, token, ident.UserID, ident.UserType, ident.Phone, time.Now().Add(ttl))
	return err
}

func (s *IdentityStore) Lookup(ctx context.Context, token string) (dispatch.Identity, bool, error) {
	var ident dispatch.Identity
	var expires time.Time
	err := s.pool.QueryRow(ctx, `
SELECT user_id, user_type, phone, expires_at FROM identities WHERE token = $1
`, token).Scan(&ident.UserID, &ident.UserType, &ident.Phone, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispatch.Identity{}, false, nil
		}
		return dispatch.Identity{}, false, err
	}
	if time.Now().After(expires) {
		return dispatch.Identity{}, false, nil
	}
	return ident, true, nil
}

func (s *IdentityStore) All(ctx context.Context) ([]dispatch.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, user_type, phone FROM identities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dispatch.Identity
	for rows.Next() {
		var ident dispatch.Identity
		if err := rows.Scan(&ident.UserID, &ident.UserType, &ident.Phone); err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}
