package middleware

import (
	"net/http"

	"github.com/cloo-solutions/policyqa/internal/api"
)

// DefaultMaxBodyBytes bounds the JSON run request. Documents are fetched by
// URL, so request bodies only carry the URL and the questions.
const DefaultMaxBodyBytes int64 = 5 << 20

// MaxBodyBytes limits request body size. A non-positive limit disables it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
