package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendRedis connects to an external Redis-compatible server
	BackendRedis Backend = "redis"
	// BackendEmbedded starts an in-process server (miniredis)
	BackendEmbedded Backend = "embedded"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// Observer receives one call per command sent to the server
type Observer interface {
	ObserveCommand(ctx context.Context, command string, duration time.Duration, err error)
}

// Config holds configuration for creating a Template instance
type Config struct {
	// Backend specifies which storage backend to use
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// Password overrides the password of RedisURL when set
	Password string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// StartupProbeTimeout bounds the PING issued while connecting
	// Default: 5 seconds
	StartupProbeTimeout time.Duration

	// Codec encodes values that are not primitives. Default: JSONCodec
	Codec Codec

	// Observer is notified of every command. Optional.
	Observer Observer

	// Logger receives debug output for commands and connection events. Optional.
	Logger LogFunc
}

// TemplateFactory defines a function that creates a Template instance
type TemplateFactory func(cfg Config) (Template, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Backend]TemplateFactory)
)

// RegisterBackend registers a template factory for a given backend
func RegisterBackend(backend Backend, factory TemplateFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[backend] = factory
}

// Backends lists the registered backends
func Backends() []Backend {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]Backend, 0, len(factories))
	for b := range factories {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewTemplateFromConfig creates a new Template based on the provided configuration
func NewTemplateFromConfig(cfg Config) (Template, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendRedis
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 5 * time.Second
	}
	if cfg.Codec == nil {
		cfg.Codec = DefaultCodec
	}

	factoriesMu.RLock()
	factory, exists := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported backend: %s (registered: %v)", cfg.Backend, Backends())
	}

	if cfg.Backend == BackendRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	tpl, err := factory(cfg)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger("Failed to create template", "backend", string(cfg.Backend), "error", err.Error())
		}
		return nil, err
	}
	return tpl, nil
}
