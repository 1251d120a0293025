package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dispatchcore/internal/dispatch"
)

type generateSlotsPayload struct {
	Date string `json:"date"`
}

// GenerateSlots handles POST /api/drivers/{driverId}/slots/generate.
func (h *Handler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	var payload generateSlotsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	slots, err := h.Slots.Generate(driverID, payload.Date)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if err := h.Store.RegenerateSlots(r.Context(), driverID, payload.Date, slots); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save slots")
		return
	}
	respondJSON(w, http.StatusOK, slots)
}

// ListSlots handles GET /api/drivers/{driverId}/slots?date=YYYY-MM-DD.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverId")
	if !matchIdentity(w, r, driverID) {
		return
	}
	date := r.URL.Query().Get("date")
	slots, err := h.Store.ListSlots(r.Context(), driverID, date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch slots")
		return
	}
	respondJSON(w, http.StatusOK, slots)
}

type selectSlotPayload struct {
	IsSelected bool `json:"isSelected"`
}

// SetSlotSelected handles POST /api/slots/{slotId}/select (driver).
func (h *Handler) SetSlotSelected(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleDriver)
	if !ok {
		return
	}
	slotID := chi.URLParam(r, "slotId")
	var payload selectSlotPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	slot, err := h.Store.GetSlot(r.Context(), slotID)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if err := dispatch.SetSelected(slot, id.UserID, payload.IsSelected, time.Now()); err != nil {
		respondCoded(w, err)
		return
	}
	if err := h.Store.SaveSlot(r.Context(), slot); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save slot")
		return
	}
	respondJSON(w, http.StatusOK, slot)
}

// BookSlot handles POST /api/slots/{slotId}/book (customer).
func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, dispatch.RoleCustomer, dispatch.RoleAdmin)
	if !ok {
		return
	}
	slotID := chi.URLParam(r, "slotId")
	slot, err := h.Store.GetSlot(r.Context(), slotID)
	if err != nil {
		respondCoded(w, err)
		return
	}
	if err := dispatch.BookSlot(slot, id.UserID); err != nil {
		respondCoded(w, err)
		return
	}
	if err := h.Store.SaveSlot(r.Context(), slot); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save slot")
		return
	}
	respondJSON(w, http.StatusOK, slot)
}
