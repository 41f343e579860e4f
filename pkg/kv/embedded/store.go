// Package embedded runs an in-process Redis-compatible server (miniredis)
// and serves it through the redis backend. It lets the demo run without an
// external server.
package embedded

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/leafsii/redis-demo/pkg/kv"
	kvredis "github.com/leafsii/redis-demo/pkg/kv/redis"
)

// Store is a redis-backed template bound to an in-process server
type Store struct {
	*kvredis.Store
	server *miniredis.Miniredis
}

var _ kv.Template = (*Store)(nil)

// New starts an in-process server and connects to it
func New(cfg kv.Config) (*Store, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded server: %w", err)
	}

	cfg.Backend = kv.BackendRedis
	cfg.RedisURL = "redis://" + server.Addr()
	cfg.Password = ""

	store, err := kvredis.NewWithConfig(cfg)
	if err != nil {
		server.Close()
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger("Embedded server started", "addr", server.Addr())
	}
	return &Store{Store: store, server: server}, nil
}

// Server exposes the in-process server, mainly for tests that need to
// fast-forward time or inspect keys directly
func (s *Store) Server() *miniredis.Miniredis {
	return s.server
}

// Addr is the address the embedded server listens on
func (s *Store) Addr() string {
	return s.server.Addr()
}

// Close disconnects the client and stops the server
func (s *Store) Close() error {
	err := s.Store.Close()
	s.server.Close()
	return err
}
