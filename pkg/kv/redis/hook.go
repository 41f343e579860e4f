package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// commandHook reports every command to an observer and, when a logger is
// set, logs it at debug level
type commandHook struct {
	observer kv.Observer
	logger   kv.LogFunc
}

var _ redis.Hook = commandHook{}

func newCommandHook(observer kv.Observer, logger kv.LogFunc) commandHook {
	return commandHook{observer: observer, logger: logger}
}

func (h commandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil && h.logger != nil {
			h.logger("Redis dial failed", "addr", addr, "error", err.Error())
		}
		return conn, err
	}
}

func (h commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd, time.Since(start))
		return err
	}
}

func (h commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)

		// MULTI and EXEC frame a transaction; they are not commands of their own
		queued := make([]redis.Cmder, 0, len(cmds))
		for _, cmd := range cmds {
			if name := cmd.Name(); name != "multi" && name != "exec" {
				queued = append(queued, cmd)
			}
		}
		if len(queued) == 0 {
			return err
		}

		// One round trip for the whole batch; spread it evenly
		each := time.Since(start) / time.Duration(len(queued))
		for _, cmd := range queued {
			h.observe(ctx, cmd, each)
		}
		return err
	}
}

func (h commandHook) observe(ctx context.Context, cmd redis.Cmder, d time.Duration) {
	err := cmd.Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}

	if h.observer != nil {
		h.observer.ObserveCommand(ctx, cmd.Name(), d, err)
	}
	if h.logger != nil {
		if err != nil {
			h.logger("Redis command failed", "command", cmd.Name(), "duration", d, "error", err.Error())
		} else {
			h.logger("Redis command", "command", cmd.Name(), "duration", d)
		}
	}
}
