package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leafsii/redis-demo/internal/scenario"
	"github.com/leafsii/redis-demo/internal/stream"
	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/leafsii/redis-demo/pkg/kv/embedded"
)

// Mock metrics for testing
type MockMetrics struct {
	mu    sync.Mutex
	paths []string
}

func (m *MockMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
}

type fakeReadiness struct {
	healthy bool
	lastErr string
}

func (f fakeReadiness) Healthy() bool     { return f.healthy }
func (f fakeReadiness) LastError() string { return f.lastErr }

type testServer struct {
	router  http.Handler
	store   *embedded.Store
	metrics *MockMetrics
}

func createTestServer(t *testing.T, readiness Readiness) *testServer {
	t.Helper()
	return createLimitedTestServer(t, readiness, 0)
}

func createLimitedTestServer(t *testing.T, readiness Readiness, runLimitRPM int) *testServer {
	t.Helper()
	store, err := embedded.New(kv.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop().Sugar()
	runner := scenario.NewRunner(store, scenario.Default(), scenario.RunnerConfig{Prefix: "test:"}, logger, nil)
	metrics := &MockMetrics{}

	handler := NewHandler(runner, readiness, stream.NewSSEHandler(runner, logger), logger)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	router := handler.Routes(NewMiddleware(logger, metrics), metricsHandler, []string{"http://localhost:3000"}, runLimitRPM)

	return &testServer{router: router, store: store, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name      string
		readiness Readiness
		status    int
	}{
		{"healthy", fakeReadiness{healthy: true}, http.StatusOK},
		{"unhealthy", fakeReadiness{lastErr: "connection refused"}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestServer(t, tt.readiness)
			rec := s.do(t, http.MethodGet, "/readyz")
			assert.Equal(t, tt.status, rec.Code)

			dto := decode[HealthDTO](t, rec)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ok", dto.Status)
			} else {
				assert.Equal(t, "connection refused", dto.LastError)
			}
		})
	}
}

func TestListScenarios(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/scenarios")
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[ScenarioListDTO](t, rec)
	require.Len(t, dto.Scenarios, 10)
	assert.Equal(t, "strings", dto.Scenarios[0].Name)
}

func TestRunScenario(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/scenarios/sorted-set/run")
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[RunDTO](t, rec)
	assert.True(t, dto.Passed)
	require.Len(t, dto.Reports, 1)
	assert.Equal(t, "sorted-set", dto.Reports[0].Scenario)

	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	assert.Contains(t, s.metrics.paths, "/v1/scenarios/{name}/run")
}

func TestRunUnknownScenario(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/scenarios/nope/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dto := decode[ErrorResponse](t, rec)
	assert.Equal(t, "SCENARIO_NOT_FOUND", dto.Code)
}

func TestRunSelectedScenarios(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/runs?scenario=strings,%20bitmap")
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[RunDTO](t, rec)
	assert.True(t, dto.Passed)
	require.Len(t, dto.Reports, 2)
	assert.Equal(t, "strings", dto.Reports[0].Scenario)
	assert.Equal(t, "bitmap", dto.Reports[1].Scenario)
}

func TestListRuns(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/runs?scenario=strings,hash,list")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[HistoryDTO](t, rec)
	assert.Len(t, dto.Reports, 2)

	rec = s.do(t, http.MethodGet, "/v1/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackendUnavailable(t *testing.T) {
	s := createTestServer(t, nil)
	s.store.Server().Close()

	rec := s.do(t, http.MethodPost, "/v1/scenarios/strings/run")
	// The scenario itself fails; the report carries the error
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[RunDTO](t, rec)
	assert.False(t, dto.Passed)
	assert.NotEmpty(t, dto.Reports[0].Error)

	rec = s.do(t, http.MethodGet, "/v1/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "BACKEND_UNAVAILABLE", decode[ErrorResponse](t, rec).Code)
}

func TestMetricsRoute(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := createTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/scenarios", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunLimit(t *testing.T) {
	m := NewMiddleware(zap.NewNop().Sugar(), nil)
	handler := m.RunLimit(6)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Burst is rpm/6 = 1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, rec).Code)
}

func TestRunLimitOnlyAppliesToRuns(t *testing.T) {
	s := createLimitedTestServer(t, nil, 6)

	rec := s.do(t, http.MethodPost, "/v1/scenarios/strings/run")
	require.Equal(t, http.StatusOK, rec.Code)

	// Both run routes share one budget
	rec = s.do(t, http.MethodPost, "/v1/runs?scenario=hash")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/scenarios").Code)
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/runs").Code)
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz").Code)
	}
}

func TestNoStoreHeaders(t *testing.T) {
	s := createTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/scenarios")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := createTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverer(t *testing.T) {
	m := NewMiddleware(zap.NewNop().Sugar(), nil)
	handler := m.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
