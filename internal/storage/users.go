package storage

import (
	"context"
	"encoding/json"

	"dispatchcore/internal/dispatch"
)

// CreateUser inserts a new identity. userId is derived by the caller via
// dispatch.DeriveUserID before this is called.
func (p *Postgres) CreateUser(ctx context.Context, u *dispatch.User) error {
	docs, err := json.Marshal(u.Documents)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO users (user_id, phone, user_type, name, active, documents, verification_status,
                    is_verified, is_online, is_available, vehicle_number, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (user_id) DO NOTHING`,
		u.UserID, u.Phone, u.UserType, u.Name, u.Active, docs, u.VerificationStatus,
		u.IsVerified, u.IsOnline, u.IsAvailable, u.VehicleNumber, u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdateDriverLocation updates a driver's last-known location and stamps
// lastSeen, independent of the isOnline flag (I4: transport activity
// never flips isOnline on its own).
func (p *Postgres) UpdateDriverLocation(ctx context.Context, driverID string, loc dispatch.DriverLocation) error {
	coord, err := json.Marshal(loc.Coordinate)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
UPDATE users SET current_location=$2, last_seen=$3, updated_at=$3 WHERE user_id=$1`,
		driverID, coord, loc.Timestamp)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO driver_locations (driver_id, latitude, longitude, "timestamp", accuracy, speed, bearing, current_trip_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (driver_id) DO UPDATE SET latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude,
	"timestamp"=EXCLUDED."timestamp", accuracy=EXCLUDED.accuracy, speed=EXCLUDED.speed,
	bearing=EXCLUDED.bearing, current_trip_id=EXCLUDED.current_trip_id`,
		driverID, loc.Coordinate.Latitude, loc.Coordinate.Longitude, loc.Timestamp,
		loc.Accuracy, loc.Speed, loc.Bearing, loc.CurrentTripID)
	return err
}

// SetOnline flips isOnline explicitly, the only sanctioned path per I4.
func (p *Postgres) SetOnline(ctx context.Context, driverID string, online bool) error {
	_, err := p.pool.Exec(ctx, `
UPDATE users SET is_online=$2, is_available = (CASE WHEN $2 THEN is_available ELSE FALSE END), updated_at=NOW()
WHERE user_id=$1`, driverID, online)
	return err
}

// ListBookingsByCustomer and ListBookingsByDriver page a participant's
// booking history, newest first.
func (p *Postgres) ListBookingsByCustomer(ctx context.Context, customerID string, limit, offset int) ([]dispatch.Booking, error) {
	return p.listBookings(ctx, "customer_id", customerID, limit, offset)
}

func (p *Postgres) ListBookingsByDriver(ctx context.Context, driverID string, limit, offset int) ([]dispatch.Booking, error) {
	return p.listBookings(ctx, "driver_id", driverID, limit, offset)
}

// ActiveBookingsFor returns the bookings that currently occupy a
// participant, used for session-connect replay and the I4 disconnect
// check (§4.8): a driver with any occupied booking must not have
// isOnline cleared by a transport drop.
func (p *Postgres) ActiveBookingsFor(ctx context.Context, userID string, role dispatch.IdentityRole) ([]*dispatch.Booking, error) {
	column := "customer_id"
	if role == dispatch.RoleDriver {
		column = "driver_id"
	}
	statuses := make([]string, 0, len(dispatch.OccupiedStatuses))
	for s, occupied := range dispatch.OccupiedStatuses {
		if occupied {
			statuses = append(statuses, string(s))
		}
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, customer_id, driver_id, status, pickup, dropoff, package, vehicle_type,
       fare, payment, timing, distance_km, cancellation, rating, driver_summary,
       created_at, updated_at
FROM bookings WHERE `+column+` = $1 AND status = ANY($2)
ORDER BY created_at DESC`, userID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*dispatch.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) listBookings(ctx context.Context, column, value string, limit, offset int) ([]dispatch.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, customer_id, driver_id, status, pickup, dropoff, package, vehicle_type,
       fare, payment, timing, distance_km, cancellation, rating, driver_summary,
       created_at, updated_at
FROM bookings WHERE `+column+` = $1
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, value, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dispatch.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
