// Package storage persists the dispatch core's domain model to Postgres
// via pgx/pgxpool, with one table per collection and nested structures
// stored as jsonb rather than normalized further (§3 storage mapping).
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/dispatch"
)

// Postgres is the primary persistence layer for bookings, drivers,
// customers, and work slots.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// DefaultPool builds a pgxpool.Pool tuned the way the rest of this core's
// long-lived connections are: a bounded max lifetime so load balancers
// and connection poolers in front of Postgres can rebalance.
func DefaultPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool config: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	return ApplySchema(ctx, p.pool)
}

// --- dispatch.Repository ---

func (p *Postgres) GetBooking(ctx context.Context, bookingID string) (*dispatch.Booking, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, customer_id, driver_id, status, pickup, dropoff, package, vehicle_type,
       fare, payment, timing, distance_km, cancellation, rating, driver_summary,
       created_at, updated_at
FROM bookings WHERE id = $1`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispatch.ErrBookingNotFound
	}
	return b, err
}

func (p *Postgres) CreateBooking(ctx context.Context, b *dispatch.Booking) error {
	pickup, err := json.Marshal(b.Pickup)
	if err != nil {
		return err
	}
	dropoff, err := json.Marshal(b.Dropoff)
	if err != nil {
		return err
	}
	pkg, err := json.Marshal(b.Package)
	if err != nil {
		return err
	}
	fare, err := json.Marshal(b.Fare)
	if err != nil {
		return err
	}
	payment, err := json.Marshal(b.Payment)
	if err != nil {
		return err
	}
	timing, err := json.Marshal(b.Timing)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
INSERT INTO bookings (id, customer_id, driver_id, status, pickup, dropoff, package, vehicle_type,
                       fare, payment, timing, distance_km, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		b.ID, b.CustomerID, dispatch.NormalizeDriverID(b.DriverID), b.Status,
		pickup, dropoff, pkg, b.VehicleType, fare, payment, timing, b.DistanceKM, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *Postgres) SaveBooking(ctx context.Context, b *dispatch.Booking) error {
	timing, err := json.Marshal(b.Timing)
	if err != nil {
		return err
	}
	cancellation, err := json.Marshal(b.Cancellation)
	if err != nil {
		return err
	}
	rating, err := json.Marshal(b.Rating)
	if err != nil {
		return err
	}
	var driverSummary []byte
	if b.Driver != nil {
		driverSummary, err = json.Marshal(b.Driver)
		if err != nil {
			return err
		}
	}
	payment, err := json.Marshal(b.Payment)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
UPDATE bookings SET driver_id=$2, status=$3, timing=$4, cancellation=$5, rating=$6,
                     driver_summary=$7, payment=$8, updated_at=$9
WHERE id=$1`,
		b.ID, dispatch.NormalizeDriverID(b.DriverID), b.Status, timing, cancellation, rating,
		driverSummary, payment, b.UpdatedAt)
	return err
}

func (p *Postgres) GetDriver(ctx context.Context, driverID string) (*dispatch.User, error) {
	row := p.pool.QueryRow(ctx, `
SELECT user_id, phone, user_type, name, active, documents, verification_status, is_verified,
       is_online, is_available, current_location, current_booking_id, rating, trip_count,
       vehicle_number, last_seen, created_at, updated_at
FROM users WHERE user_id = $1`, driverID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispatch.ErrDriverNotFound
	}
	return u, err
}

func (p *Postgres) SaveDriver(ctx context.Context, u *dispatch.User) error {
	docs, err := json.Marshal(u.Documents)
	if err != nil {
		return err
	}
	var loc []byte
	if u.CurrentLocation != nil {
		loc, err = json.Marshal(u.CurrentLocation)
		if err != nil {
			return err
		}
	}
	_, err = p.pool.Exec(ctx, `
UPDATE users SET documents=$2, verification_status=$3, is_verified=$4, is_online=$5,
                  is_available=$6, current_location=$7, current_booking_id=$8, rating=$9,
                  trip_count=$10, vehicle_number=$11, last_seen=$12, updated_at=$13
WHERE user_id=$1`,
		u.UserID, docs, u.VerificationStatus, u.IsVerified, u.IsOnline, u.IsAvailable,
		loc, u.CurrentBookingID, u.Rating, u.TripCount, u.VehicleNumber, u.LastSeen, time.Now())
	return err
}

// ReadForAccept runs the §4.1/§4.6 atomic-accept barrier: a single
// transaction that re-reads the booking and driver, hands them to fn, and
// commits the mutated rows only if fn succeeds.
func (p *Postgres) ReadForAccept(ctx context.Context, bookingID, driverID string, fn func(b *dispatch.Booking, d *dispatch.User) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	bookingRow := tx.QueryRow(ctx, `
SELECT id, customer_id, driver_id, status, pickup, dropoff, package, vehicle_type,
       fare, payment, timing, distance_km, cancellation, rating, driver_summary,
       created_at, updated_at
FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	b, err := scanBooking(bookingRow)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.ErrBookingNotFound
	}
	if err != nil {
		return err
	}

	driverRow := tx.QueryRow(ctx, `
SELECT user_id, phone, user_type, name, active, documents, verification_status, is_verified,
       is_online, is_available, current_location, current_booking_id, rating, trip_count,
       vehicle_number, last_seen, created_at, updated_at
FROM users WHERE user_id = $1 FOR UPDATE`, driverID)
	d, err := scanUser(driverRow)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		d = nil
	}

	if err := fn(b, d); err != nil {
		return err
	}

	timing, err := json.Marshal(b.Timing)
	if err != nil {
		return err
	}
	var driverSummary []byte
	if b.Driver != nil {
		driverSummary, err = json.Marshal(b.Driver)
		if err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
UPDATE bookings SET driver_id=$2, status=$3, timing=$4, driver_summary=$5, updated_at=$6
WHERE id=$1`, b.ID, dispatch.NormalizeDriverID(b.DriverID), b.Status, timing, driverSummary, b.UpdatedAt); err != nil {
		return err
	}

	if d != nil {
		if _, err := tx.Exec(ctx, `
UPDATE users SET is_available=$2, current_booking_id=$3, updated_at=$4 WHERE user_id=$1`,
			d.UserID, d.IsAvailable, d.CurrentBookingID, time.Now()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) RecordRejection(ctx context.Context, r dispatch.RejectionRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO booking_rejections (booking_id, driver_id, reason, rejected_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (booking_id, driver_id) DO NOTHING`, r.BookingID, r.DriverID, r.Reason, r.RejectedAt)
	return err
}

func (p *Postgres) RecordStatusUpdate(ctx context.Context, r dispatch.StatusUpdateRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO booking_status_updates (booking_id, status, at, actor_id, actor_role)
VALUES ($1,$2,$3,$4,$5)`, r.BookingID, r.Status, r.At, r.ActorID, r.ActorRole)
	return err
}

// --- dispatch.DriverPool ---

func (p *Postgres) OnlineAvailableVerifiedDrivers() []*dispatch.User {
	rows, err := p.pool.Query(context.Background(), `
SELECT user_id, phone, user_type, name, active, documents, verification_status, is_verified,
       is_online, is_available, current_location, current_booking_id, rating, trip_count,
       vehicle_number, last_seen, created_at, updated_at
FROM users
WHERE user_type='driver' AND is_online AND is_available AND verification_status IN ('verified','approved')`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*dispatch.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (p *Postgres) RejectedDrivers(bookingID string) (map[string]bool, error) {
	rows, err := p.pool.Query(context.Background(), `
SELECT driver_id FROM booking_rejections WHERE booking_id = $1`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// --- row scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*dispatch.Booking, error) {
	var b dispatch.Booking
	var pickup, dropoff, pkg, fare, payment, timing, cancellation, rating, driverSummary []byte
	err := row.Scan(&b.ID, &b.CustomerID, &b.DriverID, &b.Status, &pickup, &dropoff, &pkg,
		&b.VehicleType, &fare, &payment, &timing, &b.DistanceKM, &cancellation, &rating,
		&driverSummary, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pickup, &b.Pickup); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dropoff, &b.Dropoff); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pkg, &b.Package); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fare, &b.Fare); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payment, &b.Payment); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(timing, &b.Timing); err != nil {
		return nil, err
	}
	if len(cancellation) > 0 {
		_ = json.Unmarshal(cancellation, &b.Cancellation)
	}
	if len(rating) > 0 {
		_ = json.Unmarshal(rating, &b.Rating)
	}
	if len(driverSummary) > 0 {
		b.Driver = &dispatch.DriverSummary{}
		_ = json.Unmarshal(driverSummary, b.Driver)
	}
	return &b, nil
}

func scanUser(row rowScanner) (*dispatch.User, error) {
	var u dispatch.User
	var docs, loc []byte
	var lastSeen *time.Time
	err := row.Scan(&u.UserID, &u.Phone, &u.UserType, &u.Name, &u.Active, &docs,
		&u.VerificationStatus, &u.IsVerified, &u.IsOnline, &u.IsAvailable, &loc,
		&u.CurrentBookingID, &u.Rating, &u.TripCount, &u.VehicleNumber, &lastSeen,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		_ = json.Unmarshal(docs, &u.Documents)
	}
	if len(loc) > 0 {
		var c dispatch.Coordinate
		if err := json.Unmarshal(loc, &c); err == nil {
			u.CurrentLocation = &c
		}
	}
	if lastSeen != nil {
		u.LastSeen = *lastSeen
	}
	return &u, nil
}
