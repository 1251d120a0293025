package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dispatchcore/internal/dispatch"
)

type locationPayload struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Accuracy      float64 `json:"accuracy,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
	Bearing       float64 `json:"bearing,omitempty"`
	CurrentTripID string  `json:"currentTripId,omitempty"`
	Timestamp     int64   `json:"timestamp,omitempty"`
}

// UpdateDriverLocation handles POST /api/drivers/{driverId}/location. Per
// I4, this never touches isOnline — only the location and lastSeen stamp.
func (h *Handler) UpdateDriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	var payload locationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ts := time.Now()
	if payload.Timestamp > 0 {
		ts = time.UnixMilli(payload.Timestamp)
	}
	loc := dispatch.DriverLocation{
		DriverID: driverID,
		Coordinate: dispatch.Coordinate{
			Latitude:  payload.Latitude,
			Longitude: payload.Longitude,
		},
		Accuracy:      payload.Accuracy,
		Speed:         payload.Speed,
		Bearing:       payload.Bearing,
		CurrentTripID: payload.CurrentTripID,
		Timestamp:     ts,
	}
	if err := h.Store.UpdateDriverLocation(r.Context(), driverID, loc); err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to persist location")
		return
	}
	if h.Engine != nil {
		h.Engine.UpdateLocation(driverID, loc.Coordinate)
	}
	if h.GeoLive != nil {
		h.GeoLive.Upsert(r.Context(), driverID, loc.Latitude, loc.Longitude, ts)
	}
	respondJSON(w, http.StatusOK, loc)
}

type driverStatusPayload struct {
	IsOnline bool `json:"isOnline"`
}

// SetDriverOnline handles POST /api/drivers/{driverId}/status, the only
// sanctioned path for flipping isOnline (I4).
func (h *Handler) SetDriverOnline(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	var payload driverStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.Store.SetOnline(r.Context(), driverID, payload.IsOnline); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	if !payload.IsOnline {
		if h.Engine != nil {
			h.Engine.RemoveLocation(driverID)
		}
		if h.GeoLive != nil {
			h.GeoLive.Remove(r.Context(), driverID)
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"isOnline": payload.IsOnline})
}

type documentUploadPayload struct {
	Data []byte `json:"data"`
}

// UploadDriverDocument handles POST /api/drivers/{driverId}/documents/{kind}.
func (h *Handler) UploadDriverDocument(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	kind := dispatch.DocumentKind(chi.URLParam(r, "kind"))
	if !validDocumentKind(kind) {
		respondError(w, http.StatusBadRequest, "unknown document kind")
		return
	}
	var payload documentUploadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	url, err := h.Storage.PutDocument(r.Context(), driverID, kind, payload.Data)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to store document")
		return
	}
	rec := dispatch.DocumentRecord{URL: url, UploadedAt: time.Now(), Status: dispatch.DocStatusPending}
	if err := h.Store.UpsertDocument(r.Context(), driverID, kind, rec); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save document")
		return
	}
	if h.Verification != nil {
		h.Verification.Invalidate(driverID)
	}
	respondJSON(w, http.StatusOK, rec)
}

type reviewDocumentPayload struct {
	Status dispatch.DocumentStatus `json:"status"`
}

// ReviewDriverDocument handles POST /api/admin/drivers/{driverId}/documents/{kind}/review.
func (h *Handler) ReviewDriverDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleAdmin)
	if !ok {
		return
	}
	driverID := chi.URLParam(r, "driverId")
	kind := dispatch.DocumentKind(chi.URLParam(r, "kind"))
	if !validDocumentKind(kind) {
		respondError(w, http.StatusBadRequest, "unknown document kind")
		return
	}
	var payload reviewDocumentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Status != dispatch.DocStatusVerified && payload.Status != dispatch.DocStatusRejected {
		respondError(w, http.StatusBadRequest, "status must be verified or rejected")
		return
	}
	if err := h.Store.ReviewDocument(r.Context(), driverID, kind, payload.Status, id.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to review document")
		return
	}
	if h.Verification != nil {
		h.Verification.Invalidate(driverID)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(payload.Status)})
}

func validDocumentKind(kind dispatch.DocumentKind) bool {
	for _, k := range dispatch.RequiredDocumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DriverSummary handles GET /api/drivers/{driverId}/summary.
func (h *Handler) DriverSummary(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	stats, err := h.Store.DriverSummaryStats(r.Context(), driverID)
	if err != nil {
		respondError(w, http.StatusNotFound, "driver not found")
		return
	}
	ratings, err := h.Store.RatingsForProfile(r.Context(), driverID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch ratings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summary":       stats,
		"ratingAverage": averageStars(ratings),
		"ratingCount":   len(ratings),
	})
}

// CustomerSummary handles GET /api/customers/{customerId}/summary.
func (h *Handler) CustomerSummary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if !matchIdentity(w, r, customerID) {
		return
	}
	ratings, err := h.Store.RatingsForProfile(r.Context(), customerID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch ratings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ratingAverage": averageStars(ratings),
		"ratingCount":   len(ratings),
	})
}

func averageStars(ratings []dispatch.RatingRecord) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Stars
	}
	return float64(sum) / float64(len(ratings))
}
