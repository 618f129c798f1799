package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/anchor/internal/identity"
)

// RequireUser rejects requests without a valid bearer token and stores the
// token's user in the request context.
func RequireUser(iss *identity.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			u, err := iss.Verify(strings.TrimSpace(auth[len(prefix):]))
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), u)))
		})
	}
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := identity.UserFromContext(r.Context())
		if err != nil {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
			return
		}
		if !u.Admin {
			httpError(w, http.StatusForbidden, "permission_error", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
