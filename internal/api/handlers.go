package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leafsii/redis-demo/internal/scenario"
	"github.com/leafsii/redis-demo/internal/stream"
	"github.com/leafsii/redis-demo/pkg/kv"
)

// Readiness reports whether the backing store answered its last probe
type Readiness interface {
	Healthy() bool
	LastError() string
}

type Handler struct {
	runner     *scenario.Runner
	readiness  Readiness
	sseHandler *stream.SSEHandler
	logger     *zap.SugaredLogger
}

func NewHandler(
	runner *scenario.Runner,
	readiness Readiness,
	sseHandler *stream.SSEHandler,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		runner:     runner,
		readiness:  readiness,
		sseHandler: sseHandler,
		logger:     logger,
	}
}

// Scenario endpoints
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScenarioListDTO{Scenarios: h.runner.Scenarios()})
}

func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	report, err := h.runner.RunOne(r.Context(), name)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunDTO{Passed: report.Passed, Reports: []scenario.Report{report}})
}

func (h *Handler) RunScenarios(w http.ResponseWriter, r *http.Request) {
	var names []string
	if param := r.URL.Query().Get("scenario"); param != "" {
		for _, name := range strings.Split(param, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	reports, err := h.runner.Run(r.Context(), names...)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunDTO{Passed: scenario.AllPassed(reports), Reports: reports})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if param := r.URL.Query().Get("limit"); param != "" {
		n, err := strconv.Atoi(param)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := h.runner.History(r.Context(), limit)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryDTO{Reports: reports})
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil && !h.readiness.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable", LastError: h.readiness.LastError()})
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// writeRunError maps runner errors onto status codes
func (h *Handler) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scenario.ErrUnknownScenario):
		h.writeError(w, http.StatusNotFound, "SCENARIO_NOT_FOUND", err.Error())
	case errors.Is(err, kv.ErrBackendUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusServiceUnavailable, "REQUEST_ABORTED", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	writeError(w, status, code, message)
}

// Utility functions
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := sonic.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"code":"ENCODE_FAILED","message":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// routePattern is the matched chi pattern, so metrics are not labelled with
// raw scenario names
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
