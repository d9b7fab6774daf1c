package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/metrics"
)

// RequestTracker records request metrics and logs each request.
type RequestTracker struct {
	metrics *metrics.Metrics
}

// NewRequestTracker creates a new request tracker middleware. m may be nil,
// in which case only logging happens.
func NewRequestTracker(m *metrics.Metrics) *RequestTracker {
	return &RequestTracker{metrics: m}
}

// Middleware returns an HTTP middleware that tracks request metrics.
func (rt *RequestTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := routePattern(r)
			rt.metrics.HTTPRequest(r.Method, route, rw.statusCode, elapsed)

			evt := log.Debug()
			if rw.statusCode >= http.StatusInternalServerError {
				evt = log.Warn()
			}
			evt.
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Int("bytes", rw.size).
				Dur("duration", elapsed).
				Msg("Request handled")
		})
	}
}

// routePattern returns the matched chi pattern so metric labels stay
// bounded. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}
