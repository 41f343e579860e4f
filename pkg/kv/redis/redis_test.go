package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/leafsii/redis-demo/pkg/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Template {
		store, err := New(redisURL)
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMiniredisStore(t *testing.T) {
	factory := func(t *testing.T) kv.Template {
		server := miniredis.RunT(t)
		store, err := New("redis://" + server.Addr())
		require.NoError(t, err)
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		db       int
		password string
		wantErr  bool
	}{
		{name: "full url", url: "redis://localhost:6379/2", addr: "localhost:6379", db: 2},
		{name: "with password", url: "redis://:secret@localhost:6379/1", addr: "localhost:6379", db: 1, password: "secret"},
		{name: "bare address", url: "localhost:6380", addr: "localhost:6380"},
		{name: "bare address with db", url: "cache:6379/3", addr: "cache:6379", db: 3},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := ParseOptions(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opt.Addr)
			assert.Equal(t, tt.db, opt.DB)
			assert.Equal(t, tt.password, opt.Password)
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.False(t, IsConnectionError(context.DeadlineExceeded))
	assert.False(t, IsConnectionError(fmt.Errorf("get: %w", context.DeadlineExceeded)))
	assert.True(t, IsConnectionError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.True(t, IsConnectionError(errors.New("redis: client is closed")))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}

func TestNewUnreachable(t *testing.T) {
	_, err := NewWithConfig(kv.Config{
		RedisURL:            "redis://127.0.0.1:1/0",
		StartupProbeTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
}

func TestBackendUnavailableAfterServerStops(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New("redis://" + server.Addr())
	require.NoError(t, err)
	defer store.Close()

	server.Close()

	err = store.Ping(context.Background())
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
}

func TestCallerContextErrorsAreNotMapped(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New("redis://" + server.Addr())
	require.NoError(t, err)
	defer store.Close()

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = store.Values().Get(expired, "test:a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, kv.ErrBackendUnavailable)

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	err = store.Values().Set(cancelled, "test:a", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, kv.ErrBackendUnavailable)
}

func TestBackendUnavailableKeepsCause(t *testing.T) {
	err := wrapError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused"))
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	err = wrapError(refused)
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestWrongTypeIsNotMapped(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New("redis://" + server.Addr())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Values().Set(ctx, "test:str", "x"))

	_, err = store.Lists().LeftPush(ctx, "test:str", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, kv.ErrNotFound)
	assert.NotErrorIs(t, err, kv.ErrBackendUnavailable)
}

func TestTTLExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New("redis://" + server.Addr())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Values().Set(ctx, "test:ttl", "v", 10*time.Second))

	server.FastForward(11 * time.Second)

	_, err = store.Values().Get(ctx, "test:ttl")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

type recordingObserver struct {
	mu       sync.Mutex
	commands []string
	failed   []string
}

func (r *recordingObserver) ObserveCommand(_ context.Context, command string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	if err != nil {
		r.failed = append(r.failed, command)
	}
}

func TestCommandHook(t *testing.T) {
	server := miniredis.RunT(t)
	observer := &recordingObserver{}

	var logged []string
	var logMu sync.Mutex
	logger := func(msg string, fields ...any) {
		logMu.Lock()
		defer logMu.Unlock()
		logged = append(logged, fmt.Sprint(msg, fields))
	}

	store, err := NewWithConfig(kv.Config{
		RedisURL: "redis://" + server.Addr(),
		Observer: observer,
		Logger:   logger,
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Values().Set(ctx, "test:a", 1))
	_, err = store.Values().Get(ctx, "test:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = store.Tx(ctx, func(ops kv.Ops) error {
		_, err := ops.Values().Incr(ctx, "test:a")
		return err
	})
	require.NoError(t, err)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Contains(t, observer.commands, "ping")
	assert.Contains(t, observer.commands, "set")
	assert.Contains(t, observer.commands, "get")
	assert.Contains(t, observer.commands, "incr")
	// A missing key is a normal reply, not a failure
	assert.NotContains(t, observer.failed, "get")
	// Transaction framing is not counted as commands
	assert.NotContains(t, observer.commands, "multi")
	assert.NotContains(t, observer.commands, "exec")

	logMu.Lock()
	defer logMu.Unlock()
	assert.NotEmpty(t, logged)
}

func TestBitOpNotRequiresSingleSource(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New("redis://" + server.Addr())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Bitmaps().BitOp(context.Background(), kv.BitNot, "test:dest")
	assert.Error(t, err)
}
