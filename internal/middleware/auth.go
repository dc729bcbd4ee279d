package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
)

// BearerAuth rejects requests whose Authorization header does not carry secret.
// Rejected requests never reach next.
func BearerAuth(secret string, h *apperrors.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r.Header.Get("Authorization"), secret) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mintwatch"`)
				WriteError(w, r, h, apperrors.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header, secret string) bool {
	if secret == "" {
		return false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}
