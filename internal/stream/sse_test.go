package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/leafsii/redis-demo/pkg/kv/embedded"
)

type channelSource struct {
	tpl     kv.Template
	channel string
}

func (s channelSource) Subscribe(ctx context.Context) (kv.Subscription, error) {
	return s.tpl.PubSub().Subscribe(ctx, s.channel)
}

type failingSource struct{}

func (failingSource) Subscribe(context.Context) (kv.Subscription, error) {
	return nil, errors.New("unavailable")
}

// readEvent reads lines up to the blank line ending one event
func readEvent(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	event := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return event
		}
		field, value, _ := strings.Cut(line, ": ")
		event[field] = value
	}
}

func TestSSEForwardsReports(t *testing.T) {
	tpl, err := embedded.New(kv.Config{})
	require.NoError(t, err)
	defer tpl.Close()

	handler := NewSSEHandler(channelSource{tpl, "test:events"}, zap.NewNop().Sugar())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleSSE))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	connected := readEvent(t, reader)
	assert.Equal(t, "connected", connected["event"])

	payload := `{"run_id":"r1","scenario":"strings","passed":false}`
	n, err := tpl.PubSub().Publish(context.Background(), "test:events", payload)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	event := readEvent(t, reader)
	assert.Equal(t, "scenario_failed", event["event"])
	assert.Equal(t, "r1:strings", event["id"])
	assert.JSONEq(t, payload, event["data"])
}

func TestSSEHeartbeat(t *testing.T) {
	tpl, err := embedded.New(kv.Config{})
	require.NoError(t, err)
	defer tpl.Close()

	handler := NewSSEHandler(channelSource{tpl, "test:events"}, zap.NewNop().Sugar()).
		WithHeartbeat(20 * time.Millisecond)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleSSE))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)
	heartbeat := readEvent(t, reader)
	assert.Equal(t, "heartbeat", heartbeat["event"])
}

func TestSSESubscribeFailure(t *testing.T) {
	handler := NewSSEHandler(failingSource{}, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	handler.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
