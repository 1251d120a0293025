// Package collab defines and implements this core's external
// collaborator boundary (§6): the map/routing provider, document object
// storage, push notifications, and bearer-token authentication. Each
// interface has a real third-party-backed implementation and a
// dependency-free fallback for local development.
package collab

import (
	"context"

	"dispatchcore/internal/dispatch"
)

// MapProvider resolves routed distance between two points. The fare
// engine wraps it in a circuit breaker and falls back to Haversine.
type MapProvider interface {
	Distance(ctx context.Context, origin, destination dispatch.Coordinate) (km float64, err error)
}

// ObjectStorage persists an uploaded driver document and returns its
// retrievable URL.
type ObjectStorage interface {
	PutDocument(ctx context.Context, driverID string, kind dispatch.DocumentKind, data []byte) (url string, err error)
}

// PushPayload is the notification body sent to a device.
type PushPayload struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushProvider delivers a push notification to one device.
type PushProvider interface {
	Send(ctx context.Context, deviceToken string, payload PushPayload) error
}

// AuthProvider verifies a bearer token and resolves the caller's identity.
type AuthProvider interface {
	Verify(ctx context.Context, bearerToken string) (userID, userType, role, phone string, err error)
}
