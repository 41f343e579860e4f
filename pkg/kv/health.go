package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is anything that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor probes a store in the background and remembers whether the last
// probe succeeded. State changes are logged once per transition.
type Monitor struct {
	target        Pinger
	probeInterval time.Duration
	logger        LogFunc

	healthy   atomic.Bool
	probed    atomic.Bool
	lastError atomic.Value // string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor. Call Start to begin probing.
func NewMonitor(target Pinger, probeInterval time.Duration, logger LogFunc) *Monitor {
	if logger == nil {
		logger = func(msg string, fields ...any) {} // No-op logger
	}
	if probeInterval <= 0 {
		probeInterval = 5 * time.Second
	}
	m := &Monitor{
		target:        target,
		probeInterval: probeInterval,
		logger:        logger,
	}
	m.lastError.Store("")
	return m
}

// Start runs one probe synchronously, then keeps probing until Close
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	m.probe(ctx)
	go m.probeLoop(ctx)
}

// Healthy reports the result of the last probe
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// LastError returns the error message of the last failed probe, if any
func (m *Monitor) LastError() string {
	return m.lastError.Load().(string)
}

// Close stops background probing
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stop)
	<-m.done
	m.running = false
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeInterval/2)
	err := m.target.Ping(probeCtx)
	cancel()

	if err != nil {
		m.lastError.Store(err.Error())
		wasHealthy := m.healthy.Swap(false)
		if wasHealthy || !m.probed.Swap(true) {
			m.logger("Store became unhealthy", "error", err.Error())
		}
		return
	}

	m.lastError.Store("")
	m.probed.Store(true)
	if !m.healthy.Swap(true) {
		m.logger("Store is healthy")
	}
}
