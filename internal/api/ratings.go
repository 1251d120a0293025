package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dispatchcore/internal/dispatch"
)

type ratingPayload struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment,omitempty"`
}

// RateBooking handles POST /api/bookings/{bookingId}/rating. Either
// party may rate the other once the trip has a counterpart assigned.
func (h *Handler) RateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleCustomer, dispatch.RoleDriver)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Store.GetBooking(r.Context(), bookingID)
	if err != nil {
		respondCoded(w, err)
		return
	}
	var payload ratingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Stars < 1 || payload.Stars > 5 {
		respondError(w, http.StatusBadRequest, "stars must be 1-5")
		return
	}
	if payload.Stars <= 3 && strings.TrimSpace(payload.Comment) == "" {
		respondError(w, http.StatusBadRequest, "comment required for 3 stars or less")
		return
	}

	rec := dispatch.RatingRecord{Stars: payload.Stars, Comment: payload.Comment, RequiresAttention: payload.Stars <= 3}
	var raterID, rateeID string

	driverID := dispatch.NormalizeDriverID(b.DriverID)
	switch id.Role {
	case dispatch.RoleCustomer:
		if b.CustomerID != id.UserID {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		if driverID == "" {
			respondError(w, http.StatusBadRequest, "booking has no assigned driver")
			return
		}
		rec.RaterRole = dispatch.RoleCustomer
		raterID, rateeID = id.UserID, driverID
	case dispatch.RoleDriver:
		if driverID != id.UserID {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		rec.RaterRole = dispatch.RoleDriver
		raterID, rateeID = id.UserID, b.CustomerID
	}

	if err := h.Store.UpsertRating(r.Context(), bookingID, raterID, rateeID, rec.RaterRole, rec); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save rating")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stars": rec.Stars})
}
