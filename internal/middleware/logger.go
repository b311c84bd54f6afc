package middleware

import (
	"net/http"
	"strconv"

	"nutriplano/internal/metrics"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
)

// LoggerMiddleware logs each request with its status and latency and records
// the HTTP metrics. route labels must be low-cardinality, so the matched
// ServeMux pattern is used instead of the raw path.
func LoggerMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(m.Code)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(m.Duration.Seconds())

			logger.Debug().
				Str("method", r.Method).
				Str("uri", r.URL.RequestURI()).
				Int("status", m.Code).
				Dur("duration", m.Duration).
				Msg("request")
		})
	}
}
