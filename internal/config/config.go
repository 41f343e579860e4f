package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/redis-demo/pkg/kv"
)

type Config struct {
	Env      string `mapstructure:"RDM_ENV"`
	HTTPAddr string `mapstructure:"RDM_HTTP_ADDR"`

	Redis    RedisConfig    `mapstructure:",squash"`
	Runner   RunnerConfig   `mapstructure:",squash"`
	Health   HealthConfig   `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type RedisConfig struct {
	Backend      string        `mapstructure:"RDM_REDIS_BACKEND"` // "redis", "embedded"
	URL          string        `mapstructure:"RDM_REDIS_URL"`
	Password     string        `mapstructure:"RDM_REDIS_PASSWORD"`
	PoolSize     int           `mapstructure:"RDM_REDIS_POOL_SIZE"`
	DialTimeout  time.Duration `mapstructure:"RDM_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `mapstructure:"RDM_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"RDM_REDIS_WRITE_TIMEOUT"`
}

type RunnerConfig struct {
	KeyPrefix     string `mapstructure:"RDM_KEY_PREFIX"`
	Parallelism   int    `mapstructure:"RDM_PARALLELISM"`
	HistoryKey    string `mapstructure:"RDM_HISTORY_KEY"`
	HistoryLimit  int    `mapstructure:"RDM_HISTORY_LIMIT"`
	EventsChannel   string        `mapstructure:"RDM_EVENTS_CHANNEL"`
	ScenarioTimeout time.Duration `mapstructure:"RDM_SCENARIO_TIMEOUT"`
}

type HealthConfig struct {
	ProbeInterval time.Duration `mapstructure:"RDM_PROBE_INTERVAL"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"RDM_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"RDM_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("RDM_ENV", "dev")
	v.SetDefault("RDM_HTTP_ADDR", ":8080")
	v.SetDefault("RDM_REDIS_BACKEND", string(kv.BackendRedis))
	v.SetDefault("RDM_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("RDM_REDIS_PASSWORD", "")
	v.SetDefault("RDM_REDIS_POOL_SIZE", 10)
	v.SetDefault("RDM_REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("RDM_REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("RDM_REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("RDM_KEY_PREFIX", "test:")
	v.SetDefault("RDM_PARALLELISM", 4)
	v.SetDefault("RDM_HISTORY_KEY", "rdm:runs")
	v.SetDefault("RDM_HISTORY_LIMIT", 100)
	v.SetDefault("RDM_EVENTS_CHANNEL", "rdm:events")
	v.SetDefault("RDM_SCENARIO_TIMEOUT", "2m")
	v.SetDefault("RDM_PROBE_INTERVAL", "5s")
	v.SetDefault("RDM_RATE_LIMIT_RPM", 120)
	v.SetDefault("RDM_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("RDM_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("RDM_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration. Callers that override fields after Load
// should call it again.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch kv.Backend(c.Redis.Backend) {
	case kv.BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("RDM_REDIS_URL is required when RDM_REDIS_BACKEND is redis")
		}
	case kv.BackendEmbedded:
	default:
		return fmt.Errorf("invalid RDM_REDIS_BACKEND %q (must be redis or embedded)", c.Redis.Backend)
	}
	if c.Runner.Parallelism <= 0 {
		return fmt.Errorf("RDM_PARALLELISM must be positive, got %d", c.Runner.Parallelism)
	}
	if c.Runner.HistoryLimit <= 0 {
		return fmt.Errorf("RDM_HISTORY_LIMIT must be positive, got %d", c.Runner.HistoryLimit)
	}
	if c.Runner.ScenarioTimeout <= 0 {
		return fmt.Errorf("RDM_SCENARIO_TIMEOUT must be positive, got %s", c.Runner.ScenarioTimeout)
	}
	if c.Health.ProbeInterval <= 0 {
		return fmt.Errorf("RDM_PROBE_INTERVAL must be positive, got %s", c.Health.ProbeInterval)
	}
	switch c.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("invalid RDM_ENV %q (must be dev, test, or prod)", c.Env)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// KV builds the template configuration. observer and logger may be nil.
func (c *Config) KV(observer kv.Observer, logger kv.LogFunc) kv.Config {
	return kv.Config{
		Backend:      kv.Backend(c.Redis.Backend),
		RedisURL:     c.Redis.URL,
		Password:     c.Redis.Password,
		PoolSize:     c.Redis.PoolSize,
		DialTimeout:  c.Redis.DialTimeout,
		ReadTimeout:  c.Redis.ReadTimeout,
		WriteTimeout: c.Redis.WriteTimeout,
		Observer:     observer,
		Logger:       logger,
	}
}
