package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dispatchcore/internal/collab"
	"dispatchcore/internal/dispatch"
	"dispatchcore/internal/geo"
	"dispatchcore/internal/metrics"
	"dispatchcore/internal/session"
	"dispatchcore/internal/storage"
)

// Handler bundles every collaborator the external API surface (C9)
// dispatches against. It holds no business logic of its own — every
// handler method delegates to the core packages and only translates
// between HTTP and Go types.
type Handler struct {
	Core         *dispatch.BookingCore
	Engine       *dispatch.DispatchEngine
	Verification *dispatch.VerificationEngine
	Slots        *dispatch.SlotScheduler
	Store        *storage.Postgres
	Idempotency  *storage.IdempotencyStore
	GeoLive      geo.Index
	Auth         collab.AuthProvider
	Storage      collab.ObjectStorage
	Plane        *session.Plane
	Metrics      *metrics.Registry
	Log          *zap.Logger
	SlotLocation *time.Location
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondCoded maps a dispatch package error to its §7 wire shape and
// an appropriate HTTP status.
func respondCoded(w http.ResponseWriter, err error) {
	coded := dispatch.ToCoded(err)
	respondJSON(w, statusForCode(coded.ErrCode), coded)
}

func statusForCode(code dispatch.Code) int {
	switch code {
	case dispatch.CodeMissingToken, dispatch.CodeInvalidToken, dispatch.CodeTokenExpired:
		return http.StatusUnauthorized
	case dispatch.CodeForbidden, dispatch.CodeInsufficientPermissions:
		return http.StatusForbidden
	case dispatch.CodeValidationError, dispatch.CodeServiceAreaViolation:
		return http.StatusBadRequest
	case dispatch.CodeBookingNotFound, dispatch.CodeDriverNotFound, dispatch.CodeSlotNotFound:
		return http.StatusNotFound
	case dispatch.CodeBookingAlreadyAssigned, dispatch.CodeSlotAlreadyStarted, dispatch.CodeSlotNotAvailable,
		dispatch.CodeGenerationInProgress, dispatch.CodeDriverNotAvailable:
		return http.StatusConflict
	case dispatch.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}
