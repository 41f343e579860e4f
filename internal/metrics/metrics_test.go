package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExported(t *testing.T) {
	m, handler, err := Setup("redis-demo-test")
	require.NoError(t, err)

	ctx := context.Background()
	m.ObserveCommand(ctx, "get", 2*time.Millisecond, nil)
	m.ObserveCommand(ctx, "set", time.Millisecond, errors.New("boom"))
	m.RecordScenario(ctx, "strings", "passed", 10*time.Millisecond)
	m.RecordHTTPRequest(ctx, http.MethodGet, "/v1/scenarios", http.StatusOK, time.Millisecond)

	body := scrape(t, handler)
	assert.Contains(t, body, "rdm_redis_commands_total")
	assert.Contains(t, body, "rdm_redis_command_errors_total")
	assert.Contains(t, body, `command="set"`)
	assert.Contains(t, body, "rdm_scenario_runs_total")
	assert.Contains(t, body, `result="passed"`)
	assert.Contains(t, body, "rdm_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestSetupTwice(t *testing.T) {
	_, _, err := Setup("first")
	require.NoError(t, err)
	_, _, err = Setup("second")
	require.NoError(t, err)
}
