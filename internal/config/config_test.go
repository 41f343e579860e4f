package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/redis-demo/pkg/kv"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "redis", cfg.Redis.Backend)
	assert.Equal(t, "redis://127.0.0.1:6379/0", cfg.Redis.URL)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, "test:", cfg.Runner.KeyPrefix)
	assert.Equal(t, 4, cfg.Runner.Parallelism)
	assert.Equal(t, 100, cfg.Runner.HistoryLimit)
	assert.Equal(t, 2*time.Minute, cfg.Runner.ScenarioTimeout)
	assert.Equal(t, 5*time.Second, cfg.Health.ProbeInterval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RDM_ENV", "prod")
	t.Setenv("RDM_REDIS_BACKEND", "embedded")
	t.Setenv("RDM_KEY_PREFIX", "demo:")
	t.Setenv("RDM_PARALLELISM", "8")
	t.Setenv("RDM_REDIS_READ_TIMEOUT", "250ms")
	t.Setenv("RDM_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "embedded", cfg.Redis.Backend)
	assert.Equal(t, "demo:", cfg.Runner.KeyPrefix)
	assert.Equal(t, 8, cfg.Runner.Parallelism)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("RDM_HTTP_ADDR=:9999\nRDM_HISTORY_LIMIT=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RDM_HTTP_ADDR") })
	// gotenv never overrides variables that are already set
	t.Setenv("RDM_HISTORY_LIMIT", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 12, cfg.Runner.HistoryLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"RDM_REDIS_BACKEND": "memcached"}},
		{"negative history limit", map[string]string{"RDM_HISTORY_LIMIT": "-1"}},
		{"zero parallelism", map[string]string{"RDM_PARALLELISM": "0"}},
		{"unknown env", map[string]string{"RDM_ENV": "staging"}},
		{"zero scenario timeout", map[string]string{"RDM_SCENARIO_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Env = "bogus"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RDM_ENV")
}

func TestKV(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Backend: "embedded", PoolSize: 3, ReadTimeout: time.Second}}
	logger := func(string, ...any) {}

	kc := cfg.KV(nil, logger)
	assert.Equal(t, kv.BackendEmbedded, kc.Backend)
	assert.Equal(t, 3, kc.PoolSize)
	assert.Equal(t, time.Second, kc.ReadTimeout)
	assert.NotNil(t, kc.Logger)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
