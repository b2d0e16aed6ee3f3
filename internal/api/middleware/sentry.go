package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cloo-solutions/policyqa/internal/telemetry"
)

// SentryMiddleware wraps each request in a Sentry transaction and reports
// panics and 5xx responses. It is a no-op when Sentry is not initialized.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}
		ctx := sentry.SetHubOnContext(r.Context(), hub)

		ctx, transaction := telemetry.StartTransaction(ctx, r.Method, r.URL.Path, r.Header)
		defer transaction.End()
		r = r.WithContext(ctx)

		hub.Scope().SetContext("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		})
		if requestID := GetRequestID(ctx); requestID != "" {
			hub.Scope().SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}
		if userAgent := r.UserAgent(); userAgent != "" {
			hub.Scope().SetTag("user_agent", userAgent)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.SetHTTPStatus(http.StatusInternalServerError)
				hub.RecoverWithContext(ctx, err)
				panic(err)
			}
		}()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := statusOf(ww)

		transaction.SetRoute(r.Method, routePattern(r))
		transaction.SetHTTPStatus(status)

		if status >= 500 {
			telemetry.CaptureMessage(ctx, fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
		}
	})
}
