package middleware

import (
	"log/slog"
	"net/http"

	"github.com/25kamalesh/YapOps/internal/metrics"
)

// NewRequestLogger creates a middleware that logs details about each
// incoming request and counts it for the metrics endpoint.
func NewRequestLogger(logger *slog.Logger, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			m.IncHTTPRequest()
			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
		})
	}
}
