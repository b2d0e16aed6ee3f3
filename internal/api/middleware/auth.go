package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/policyqa/internal/api"
	"github.com/cloo-solutions/policyqa/internal/domain"
)

type contextKey string

const bearerPrefix = "Bearer "

// BearerAuth rejects requests whose Authorization header does not carry the
// configured static token. Both failure modes answer 403.
func BearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
				api.Error(w, http.StatusForbidden, domain.ErrMissingAuthorization.Message)
				return
			}

			presented := []byte(strings.TrimPrefix(authHeader, bearerPrefix))
			if len(expected) == 0 || subtle.ConstantTimeCompare(presented, expected) != 1 {
				api.Error(w, http.StatusForbidden, domain.ErrInvalidCredentials.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
