package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed implementation of the kv.Template interface
type Store struct {
	*ops
	client *redis.Client
}

var _ kv.Template = (*Store)(nil)

// IsConnectionError checks if an error is a connection-related error
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Don't treat redis.Nil as a connection error (it means "key not found")
	if err == redis.Nil {
		return false
	}

	// The caller giving up is not a backend failure. context.DeadlineExceeded
	// also satisfies net.Error, so it has to be ruled out first.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := err.Error()
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"timeout",
		"connection closed",
		"client is closed",
		"EOF",
	}

	for _, connErr := range connectionErrors {
		if strings.Contains(errStr, connErr) {
			return true
		}
	}

	return false
}

// wrapError maps client errors onto the kv sentinels
func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return kv.ErrNotFound
	case errors.Is(err, redis.TxFailedErr):
		return kv.ErrTxConflict
	case errors.Is(err, kv.ErrCodec):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case IsConnectionError(err):
		return fmt.Errorf("%w: %w", kv.ErrBackendUnavailable, err)
	}
	return err
}

// ParseOptions accepts redis:// and rediss:// URLs as well as a bare
// host:port[/db] address
func ParseOptions(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err == nil {
		return opt, nil
	}

	// Fallback for simple address format
	u, parseErr := url.Parse("redis://" + redisURL)
	if parseErr != nil || u.Host == "" {
		return nil, err // Return original error
	}

	db := 0
	if u.Path != "" && u.Path != "/" {
		if dbNum, dbErr := strconv.Atoi(u.Path[1:]); dbErr == nil {
			db = dbNum
		}
	}

	opt = &redis.Options{
		Addr: u.Host,
		DB:   db,
	}
	if u.User != nil {
		if password, hasPassword := u.User.Password(); hasPassword {
			opt.Password = password
		}
	}
	return opt, nil
}

// New creates a new Redis-backed store with default settings
func New(redisURL string) (*Store, error) {
	return NewWithConfig(kv.Config{Backend: kv.BackendRedis, RedisURL: redisURL})
}

// NewWithConfig creates a Redis-backed store and verifies the connection
func NewWithConfig(cfg kv.Config) (*Store, error) {
	opt, err := ParseOptions(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opt)
	if cfg.Observer != nil || cfg.Logger != nil {
		client.AddHook(newCommandHook(cfg.Observer, cfg.Logger))
	}

	timeout := cfg.StartupProbeTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrapError(err)
	}

	return NewFromClient(client, cfg.Codec), nil
}

// NewFromClient wraps an existing client without probing it
func NewFromClient(client *redis.Client, codec kv.Codec) *Store {
	if codec == nil {
		codec = kv.DefaultCodec
	}
	return &Store{
		ops:    &ops{cmd: client, codec: codec},
		client: client,
	}
}

// Client exposes the underlying go-redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

// Tx queues fn's commands inside MULTI/EXEC
func (s *Store) Tx(ctx context.Context, fn func(kv.Ops) error) ([]kv.TxResult, error) {
	cmds, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return fn(s.queued(p))
	})
	return execResult(cmds, err)
}

// Pipeline sends fn's commands in one round trip without MULTI/EXEC
func (s *Store) Pipeline(ctx context.Context, fn func(kv.Ops) error) ([]kv.TxResult, error) {
	cmds, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		return fn(s.queued(p))
	})
	return execResult(cmds, err)
}

// Watch runs fn under WATCH keys
func (s *Store) Watch(ctx context.Context, fn func(kv.Txn) error, keys ...string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		return fn(&txn{
			ops:   &ops{cmd: tx, codec: s.codec},
			tx:    tx,
			store: s,
		})
	}, keys...)
	return wrapError(err)
}

// PubSub returns the publish/subscribe operations
func (s *Store) PubSub() kv.PubSubOps {
	return pubSubOps{store: s}
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return wrapError(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) queued(p redis.Pipeliner) *ops {
	return &ops{cmd: p, codec: s.codec, queued: true}
}

type txn struct {
	*ops
	tx    *redis.Tx
	store *Store
}

func (t *txn) Exec(ctx context.Context, fn func(kv.Ops) error) ([]kv.TxResult, error) {
	cmds, err := t.tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return fn(t.store.queued(p))
	})
	return execResult(cmds, err)
}

// execResult converts EXEC replies. A missing key inside the batch is
// reported on its own reply rather than failing the whole batch.
func execResult(cmds []redis.Cmder, err error) ([]kv.TxResult, error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		return toResults(cmds), wrapError(err)
	}
	return toResults(cmds), nil
}

func toResults(cmds []redis.Cmder) []kv.TxResult {
	results := make([]kv.TxResult, 0, len(cmds))
	for _, cmd := range cmds {
		name := cmd.Name()
		if name == "multi" || name == "exec" {
			continue
		}
		results = append(results, kv.TxResult{
			Command: name,
			Value:   cmdValue(cmd),
			Err:     wrapError(cmd.Err()),
		})
	}
	return results
}

func cmdValue(cmd redis.Cmder) any {
	switch c := cmd.(type) {
	case *redis.IntCmd:
		return c.Val()
	case *redis.StringCmd:
		return c.Val()
	case *redis.StatusCmd:
		return c.Val()
	case *redis.BoolCmd:
		return c.Val()
	case *redis.FloatCmd:
		return c.Val()
	case *redis.DurationCmd:
		return c.Val()
	case *redis.StringSliceCmd:
		return c.Val()
	case *redis.IntSliceCmd:
		return c.Val()
	case *redis.BoolSliceCmd:
		return c.Val()
	case *redis.SliceCmd:
		return c.Val()
	case *redis.MapStringStringCmd:
		return c.Val()
	case *redis.ZSliceCmd:
		return fromZ(c.Val())
	case *redis.Cmd:
		return c.Val()
	}
	return cmd.String()
}
