package storage

import (
	"context"
	"encoding/json"
	"time"

	"dispatchcore/internal/dispatch"
)

// UpsertDocument writes (or overwrites) one driver document and records a
// verification_requests row an admin can later review, mirroring the
// teacher's pattern of pairing a denormalized write with an append-only
// tracking row (see booking_status_updates).
func (p *Postgres) UpsertDocument(ctx context.Context, driverID string, kind dispatch.DocumentKind, rec dispatch.DocumentRecord) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
UPDATE users SET documents = jsonb_set(documents, $2, $3::jsonb, true), updated_at = NOW()
WHERE user_id = $1`, driverID, []string{string(kind)}, recJSON); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO document_verification_requests (driver_id, kind, status)
VALUES ($1,$2,$3)`, driverID, string(kind), string(rec.Status)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReviewDocument applies an admin verification decision to one document
// and refreshes the driver's documents map in the same statement pair.
func (p *Postgres) ReviewDocument(ctx context.Context, driverID string, kind dispatch.DocumentKind, status dispatch.DocumentStatus, reviewedBy string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
UPDATE users SET documents = jsonb_set(documents, $2, (documents->$3) || jsonb_build_object('status', $4::text), true), updated_at = NOW()
WHERE user_id = $1`, driverID, []string{string(kind)}, string(kind), string(status)); err != nil {
		return err
	}
	now := time.Now()
	if _, err := tx.Exec(ctx, `
UPDATE document_verification_requests SET status=$3, reviewed_by=$4, reviewed_at=$5
WHERE id = (
	SELECT id FROM document_verification_requests
	WHERE driver_id=$1 AND kind=$2
	ORDER BY created_at DESC LIMIT 1
)`, driverID, string(kind), string(status), reviewedBy, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertRating records the post-trip rating one party leaves for the
// other; a booking may carry at most one rating per rater role (§8).
func (p *Postgres) UpsertRating(ctx context.Context, bookingID, raterID, rateeID string, raterRole dispatch.IdentityRole, r dispatch.RatingRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO ratings (booking_id, rater_id, ratee_id, rater_role, stars, comment, requires_attention)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (booking_id, rater_role) DO UPDATE SET
	stars = EXCLUDED.stars, comment = EXCLUDED.comment, requires_attention = EXCLUDED.requires_attention
`, bookingID, raterID, rateeID, string(raterRole), r.Stars, r.Comment, r.RequiresAttention)
	return err
}

// RatingsForProfile returns every rating left for a given ratee, newest first.
func (p *Postgres) RatingsForProfile(ctx context.Context, rateeID string, limit int) ([]dispatch.RatingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
SELECT stars, comment, rater_role, requires_attention
FROM ratings WHERE ratee_id = $1
ORDER BY created_at DESC LIMIT $2`, rateeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dispatch.RatingRecord
	for rows.Next() {
		var r dispatch.RatingRecord
		if err := rows.Scan(&r.Stars, &r.Comment, &r.RaterRole, &r.RequiresAttention); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DriverSummaryStats aggregates the denormalized fields needed for a
// driver profile view.
func (p *Postgres) DriverSummaryStats(ctx context.Context, driverID string) (dispatch.DriverSummary, error) {
	var s dispatch.DriverSummary
	s.DriverID = driverID
	err := p.pool.QueryRow(ctx, `
SELECT name, phone, vehicle_number, rating FROM users WHERE user_id = $1`, driverID,
	).Scan(&s.Name, &s.Phone, &s.VehicleNumber, &s.Rating)
	return s, err
}
