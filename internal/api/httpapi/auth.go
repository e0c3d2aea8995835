package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader is the header name for admin authentication token.
const AdminTokenHeader = "X-Admin-Token"

// adminAuth rejects mutating requests without the configured admin token.
// It lets everything through when no token is configured.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(AdminTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Server.AdminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
