package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/leafsii/redis-demo/pkg/kv"
)

// EventSource yields published scenario reports
type EventSource interface {
	Subscribe(ctx context.Context) (kv.Subscription, error)
}

type SSEHandler struct {
	source    EventSource
	logger    *zap.SugaredLogger
	heartbeat time.Duration
}

func NewSSEHandler(source EventSource, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		source:    source,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

// WithHeartbeat overrides the keep-alive interval
func (h *SSEHandler) WithHeartbeat(d time.Duration) *SSEHandler {
	h.heartbeat = d
	return h
}

// reportMeta is the part of a report used to label an event
type reportMeta struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Passed   bool   `json:"passed"`
}

func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Create context that cancels when client disconnects
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.source.Subscribe(ctx)
	if err != nil {
		h.logger.Warnw("Failed to subscribe for SSE", "error", err)
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.logger.Debugw("SSE connection established", "remote_addr", r.RemoteAddr)
	h.sendEvent(w, flusher, "connected", "", nil)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, flusher, "heartbeat", "ping", map[string]any{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-ch:
			if !ok {
				h.logger.Debugw("SSE subscription closed")
				return
			}

			var meta reportMeta
			if err := sonic.UnmarshalString(msg.Payload, &meta); err != nil {
				h.logger.Warnw("Failed to parse report payload", "error", err)
				continue
			}

			eventType := "scenario_passed"
			if !meta.Passed {
				eventType = "scenario_failed"
			}
			h.sendRaw(w, flusher, eventType, meta.RunID+":"+meta.Scenario, msg.Payload)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType, id string, data any) {
	payload := "{}"
	if data != nil {
		encoded, err := sonic.MarshalString(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		payload = encoded
	}
	h.sendRaw(w, flusher, eventType, id, payload)
}

func (h *SSEHandler) sendRaw(w http.ResponseWriter, flusher http.Flusher, eventType, id, payload string) {
	fmt.Fprintf(w, "event: %s\n", eventType)
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
