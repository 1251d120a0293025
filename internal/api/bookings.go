package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dispatchcore/internal/dispatch"
)

type createBookingPayload struct {
	ID          string              `json:"id"`
	Pickup      dispatch.Address    `json:"pickup"`
	Dropoff     dispatch.Address    `json:"dropoff"`
	Package     dispatch.Package    `json:"package"`
	VehicleType dispatch.VehicleType `json:"vehicleType"`
	Payment     dispatch.Payment    `json:"payment"`
}

// CreateBooking handles POST /api/bookings (customers only). A client may
// set the Idempotency-Key header to make a retried create return the
// original booking instead of creating a second one.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleCustomer, dispatch.RoleAdmin)
	if !ok {
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if h.Idempotency != nil && idemKey != "" {
		if existingID, found, err := h.Idempotency.Lookup(r.Context(), idemKey); err == nil && found {
			if existing, err := h.Store.GetBooking(r.Context(), existingID); err == nil {
				respondJSON(w, http.StatusAccepted, existing)
				return
			}
		}
	}
	var payload createBookingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.Core.Create(r.Context(), dispatch.CreateInput{
		ID:          payload.ID,
		CustomerID:  id.UserID,
		Pickup:      payload.Pickup,
		Dropoff:     payload.Dropoff,
		Package:     payload.Package,
		VehicleType: payload.VehicleType,
		Payment:     payload.Payment,
	})
	if err != nil {
		respondCoded(w, err)
		return
	}
	if h.Idempotency != nil && idemKey != "" {
		h.Idempotency.Remember(r.Context(), idemKey, b.ID)
	}
	if h.Metrics != nil {
		h.Metrics.BookingsCreated.Inc()
	}
	if h.Engine != nil {
		if candidates, cerr := h.Engine.Candidates(b.ID, b.Pickup.Location); cerr == nil && h.Plane != nil {
			notif := dispatch.BuildNotification(b)
			for _, cand := range candidates {
				h.Plane.BroadcastNewBooking(cand.Driver.UserID, notif)
			}
		}
	}
	respondJSON(w, http.StatusAccepted, b)
}

// GetBooking handles GET /api/bookings/{bookingId}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Store.GetBooking(r.Context(), bookingID)
	if err != nil {
		respondCoded(w, err)
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if id.Role != dispatch.RoleAdmin && id.UserID != b.CustomerID && id.UserID != dispatch.NormalizeDriverID(b.DriverID) {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// AcceptBooking handles POST /api/bookings/{bookingId}/accept (drivers only).
func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleDriver)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Core.Accept(r.Context(), bookingID, id.UserID)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.BookingsAccepted.Inc()
	}
	if h.Plane != nil {
		h.Plane.BroadcastDriverAssigned(b)
	}
	respondJSON(w, http.StatusOK, b)
}

type rejectBookingPayload struct {
	Reason string `json:"reason,omitempty"`
}

// RejectBooking handles POST /api/bookings/{bookingId}/reject (drivers only).
func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleDriver)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	var payload rejectBookingPayload
	json.NewDecoder(r.Body).Decode(&payload)
	b, err := h.Core.Reject(r.Context(), bookingID, id.UserID, payload.Reason)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.BookingsRejected.Inc()
	}
	if h.Engine != nil && h.Plane != nil {
		if candidates, cerr := h.Engine.Candidates(b.ID, b.Pickup.Location); cerr == nil {
			notif := dispatch.BuildNotification(b)
			for _, cand := range candidates {
				h.Plane.BroadcastNewBooking(cand.Driver.UserID, notif)
			}
		}
	}
	respondJSON(w, http.StatusOK, b)
}

type statusUpdatePayload struct {
	Status dispatch.BookingStatus `json:"status"`
}

// UpdateBookingStatus handles POST /api/bookings/{bookingId}/status.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleDriver, dispatch.RoleCustomer, dispatch.RoleAdmin)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	var payload statusUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.Core.UpdateStatus(r.Context(), bookingID, payload.Status, id.UserID, id.Role)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if h.Plane != nil {
		h.Plane.BroadcastBookingUpdate(b)
	}
	respondJSON(w, http.StatusOK, b)
}

type cancelBookingPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CancelBooking handles POST /api/bookings/{bookingId}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleDriver, dispatch.RoleCustomer, dispatch.RoleAdmin)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	var payload cancelBookingPayload
	json.NewDecoder(r.Body).Decode(&payload)
	b, err := h.Core.Cancel(r.Context(), bookingID, id.UserID, payload.Reason)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.BookingsCancelled.Inc()
	}
	if h.Plane != nil {
		h.Plane.BroadcastBookingUpdate(b)
	}
	respondJSON(w, http.StatusOK, b)
}

// ListCustomerBookings handles GET /api/customers/{customerId}/bookings.
func (h *Handler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if !matchIdentity(w, r, customerID) {
		return
	}
	limit, offset := pageParams(r)
	bookings, err := h.Store.ListBookingsByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch bookings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": bookings, "limit": limit, "offset": offset})
}

// ListDriverBookings handles GET /api/drivers/{driverId}/bookings.
func (h *Handler) ListDriverBookings(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	limit, offset := pageParams(r)
	bookings, err := h.Store.ListBookingsByDriver(r.Context(), driverID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch bookings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": bookings, "limit": limit, "offset": offset})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
