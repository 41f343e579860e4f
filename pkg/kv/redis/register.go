package redis

import (
	"fmt"

	"github.com/leafsii/redis-demo/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendRedis, func(cfg kv.Config) (kv.Template, error) {
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
		}
		return NewWithConfig(cfg)
	})
}

// NewTemplate creates a new Redis-backed template
func NewTemplate(redisURL string) (kv.Template, error) {
	return New(redisURL)
}
