package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/observability"
)

// resolutionNote is filled in by the resolve handlers for the access log.
type resolutionNote struct {
	coordinates atomic.Int64
	resolved    atomic.Int64
}

type resolutionNoteKey struct{}

// NoteResolution records how many coordinates a request asked for and how
// many of them resolved. It is a no-op outside RequestMetrics.
func NoteResolution(ctx context.Context, coordinates, resolved int) {
	note, ok := ctx.Value(resolutionNoteKey{}).(*resolutionNote)
	if !ok {
		return
	}
	note.coordinates.Add(int64(coordinates))
	note.resolved.Add(int64(resolved))
}

// routeLabel returns a low-cardinality endpoint label.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch path := r.URL.Path; path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/v1/resolve", "/v1/repositories", "/version", "/metrics", "/":
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics emits per-route HTTP telemetry and one access log line per
// request carrying the request ID and, for resolve endpoints, the number of
// coordinates requested and resolved.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		note := &resolutionNote{}
		r = r.WithContext(context.WithValue(r.Context(), resolutionNoteKey{}, note))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		endpoint := routeLabel(r)
		coordinates := note.coordinates.Load()
		resolved := note.resolved.Load()

		if sys := observability.TelemetrySystem; sys != nil {
			labels := map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
				"status":   strconv.Itoa(status),
			}
			_ = sys.Counter("http_requests_total", 1, labels)
			_ = sys.Histogram("http_request_duration_ms", duration, labels)
			_ = sys.Gauge("http_response_size_bytes", float64(ww.BytesWritten()), map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
			})
			if status >= 400 {
				errorType := "client_error"
				if status >= 500 {
					errorType = "server_error"
				}
				_ = sys.Counter("http_errors_total", 1, map[string]string{
					"method":     r.Method,
					"endpoint":   endpoint,
					"status":     strconv.Itoa(status),
					"error_type": errorType,
				})
			}
			if coordinates > 0 {
				_ = sys.Counter("http_requested_coordinates_total", float64(coordinates), map[string]string{"endpoint": endpoint})
				_ = sys.Counter("http_unresolved_coordinates_total", float64(coordinates-resolved), map[string]string{"endpoint": endpoint})
			}
		}

		if observability.ServerLogger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.Int("response_size", ww.BytesWritten()),
		}
		if coordinates > 0 {
			fields = append(fields, zap.Int64("coordinates", coordinates), zap.Int64("resolved", resolved))
		}
		observability.ServerLogger.Info("HTTP request completed", fields...)
	})
}
