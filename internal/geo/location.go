// Package geo maintains the live driver-location index that the HTTP
// layer updates on every driver location post: a Redis GEO-backed index
// in production, with an in-memory fallback for single-process
// deployments. The dispatch engine does not query it.
package geo

import (
	"context"
	"time"
)

// Hit is one entry in a Nearby result: a driver id and its great-circle
// distance from the query point, in kilometres.
type Hit struct {
	DriverID   string
	DistanceKM float64
}

// Index is the live driver-location plane (C1/C7), separate from the
// dispatch engine's own H3 prefilter. Implementations need not be
// authoritative: the driver record in the store remains the source of
// eligibility and location.
type Index interface {
	Upsert(ctx context.Context, driverID string, lat, lon float64, at time.Time) error
	Remove(ctx context.Context, driverID string) error
	Nearby(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error)
}
