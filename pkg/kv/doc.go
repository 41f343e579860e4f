// Package kv provides typed operation groups over a Redis-compatible store.
//
// A Template exposes one group per data type (values, hashes, lists, sets,
// sorted sets, HyperLogLogs, bitmaps, keys) plus MULTI/EXEC transactions,
// optimistic WATCH transactions, pipelines and publish/subscribe. The store
// itself and the wire protocol are handled by the backend client; this
// package only shapes the calls and maps errors.
//
// Example usage:
//
//	tpl, err := kv.NewTemplateFromConfig(kv.Config{
//		Backend:  kv.BackendRedis,
//		RedisURL: "redis://localhost:6379/0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tpl.Close()
//
//	ctx := context.Background()
//	if err := tpl.Values().Set(ctx, "test:count", 1); err != nil {
//		log.Fatal(err)
//	}
//	n, err := tpl.Values().Incr(ctx, "test:count") // 2
//
//	replies, err := tpl.Tx(ctx, func(ops kv.Ops) error {
//		_, err := ops.Sets().Add(ctx, "test:tx", "Kim", "Bob", "Jack")
//		return err
//	})
//
// Backends register themselves on import: pkg/kv/redis for an external
// server and pkg/kv/embedded for an in-process miniredis server.
package kv
