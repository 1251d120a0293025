package api

import (
	"encoding/json"
	"net/http"
	"time"

	"dispatchcore/internal/collab"
	"dispatchcore/internal/dispatch"
)

type registerPayload struct {
	Phone    string `json:"phone"`
	UserType string `json:"userType"`
	TTL      string `json:"ttl,omitempty"`
}

// RegisterIdentity issues a bearer token for a (phone, userType) pair,
// deriving the role-scoped userId via dispatch.DeriveUserID. It supports
// whichever collab.AuthProvider the deployment is configured with: a
// JWTAuthProvider mints a signed token, an InMemoryAuthProvider mints an
// opaque one.
func (h *Handler) RegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	role := dispatch.IdentityRole(payload.UserType)
	switch role {
	case dispatch.RoleCustomer, dispatch.RoleDriver, dispatch.RoleAdmin:
	default:
		respondError(w, http.StatusBadRequest, "userType must be customer, driver, or admin")
		return
	}
	if payload.Phone == "" {
		respondError(w, http.StatusBadRequest, "phone is required")
		return
	}
	ttl := 24 * time.Hour
	if payload.TTL != "" {
		if parsed, err := time.ParseDuration(payload.TTL); err == nil {
			ttl = parsed
		}
	}
	userID := dispatch.DeriveUserID(payload.Phone, role)

	var token string
	var err error
	switch auth := h.Auth.(type) {
	case *collab.JWTAuthProvider:
		token, err = auth.Issue(userID, payload.UserType, payload.UserType, payload.Phone, ttl)
	case *collab.InMemoryAuthProvider:
		token, err = auth.Register(userID, payload.UserType, payload.UserType, payload.Phone)
	default:
		respondError(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"userId": userID,
	})
}
