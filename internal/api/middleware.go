package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

type Middleware struct {
	logger  *zap.SugaredLogger
	metrics MetricsInterface
}

func NewMiddleware(logger *zap.SugaredLogger, metrics MetricsInterface) *Middleware {
	return &Middleware{
		logger:  logger,
		metrics: metrics,
	}
}

// CORS lets browser dashboards read results and follow the event stream.
// The API only reads and triggers runs, so GET and POST are enough.
func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})
}

// RunLimit throttles the endpoints that execute scenarios. A scenario run
// issues thousands of commands against the store, so the limit sits on those
// routes only; listing, history and the event stream stay unthrottled.
// A non-positive rpm disables limiting.
func (m *Middleware) RunLimit(rpm int) func(http.Handler) http.Handler {
	if rpm <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := time.Minute / time.Duration(rpm)
	limiter := rate.NewLimiter(rate.Every(every), max(rpm/6, 1))
	retryAfter := strconv.Itoa(max(int(every/time.Second), 1))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				m.logger.Warnw("Run rejected by rate limit",
					"request_id", middleware.GetReqID(r.Context()),
					"path", r.URL.Path,
					"rpm", rpm,
				)
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many scenario runs, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request, at a level that follows the
// status. Probe endpoints only log at debug.
func (m *Middleware) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", duration,
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, "query", r.URL.RawQuery)
			}

			switch {
			case status >= http.StatusInternalServerError:
				m.logger.Errorw("HTTP request", fields...)
			case status >= http.StatusBadRequest:
				m.logger.Warnw("HTTP request", fields...)
			case isProbe(route):
				m.logger.Debugw("HTTP request", fields...)
			default:
				m.logger.Infow("HTTP request", fields...)
			}

			if m.metrics != nil {
				m.metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

func isProbe(route string) bool {
	switch route {
	case "/healthz", "/readyz", "/metrics", "/ping":
		return true
	}
	return false
}

// NoStore marks responses as uncacheable: run results and history change on
// every call
func (m *Middleware) NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a JSON 500
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			m.logger.Errorw("Panic recovered",
				"panic", rvr,
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", routePattern(r),
			)
			writeError(w, http.StatusInternalServerError, "INTERNAL", http.StatusText(http.StatusInternalServerError))
		}()

		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-ID"

// RequestID reuses a well-formed incoming id or assigns a new one
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, requestID)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Timeout bounds the JSON routes. The handler's context is cancelled when the
// deadline passes, which stops waiting on a scenario run.
func (m *Middleware) Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	body := `{"code":"TIMEOUT","message":"request timed out"}`
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, body)
	}
}
