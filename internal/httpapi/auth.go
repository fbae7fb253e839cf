package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const AdminKeyHeader = "X-Admin-Key"

// adminKeyMatches accepts either the plain admin key or, when the configured
// value is a bcrypt hash, any key that matches it.
func adminKeyMatches(configured, presented string) bool {
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing admin key")
			return
		}
		if !adminKeyMatches(h.adminKey, key) {
			h.log.WithField("path", r.URL.Path).Warn("rejected catalogue write with invalid admin key")
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
