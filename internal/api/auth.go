package api

import (
	"context"
	"net/http"
	"strings"

	"dispatchcore/internal/collab"
	"dispatchcore/internal/dispatch"
)

type identityCtxKey struct{}

// Identity is the resolved caller attached to a request's context once
// the bearer token clears collab.AuthProvider.Verify.
type Identity struct {
	UserID string
	Role   dispatch.IdentityRole
	Type   string
	Phone  string
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// authMiddleware verifies the bearer token on every request via the
// configured collab.AuthProvider and attaches the resolved Identity.
func authMiddleware(provider collab.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := parseToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "missing token")
				return
			}
			userID, userType, role, phone, err := provider.Verify(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusForbidden, "invalid token")
				return
			}
			ident := Identity{UserID: userID, Role: dispatch.IdentityRole(role), Type: userType, Phone: phone}
			ctx := context.WithValue(r.Context(), identityCtxKey{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

func requireRole(w http.ResponseWriter, r *http.Request, allowed ...dispatch.IdentityRole) (Identity, bool) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return Identity{}, false
	}
	for _, role := range allowed {
		if id.Role == role {
			return id, true
		}
	}
	respondError(w, http.StatusForbidden, "forbidden")
	return Identity{}, false
}

func matchIdentity(w http.ResponseWriter, r *http.Request, targetID string) bool {
	id, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if id.Role == dispatch.RoleAdmin {
		return true
	}
	if id.UserID != targetID {
		respondError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
