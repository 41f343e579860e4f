package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key, field or member is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrTxConflict is returned when a watched key changed before EXEC
var ErrTxConflict = errors.New("transaction conflict")

// ErrCodec is returned when a value cannot be encoded or decoded
var ErrCodec = errors.New("codec error")

// Template is the entry point to a Redis-compatible store. It groups the
// store's commands by data type and owns the underlying connection pool.
type Template interface {
	Ops

	// Tx queues every command issued on the Ops passed to fn and submits
	// them together with MULTI/EXEC. Replies read inside fn are zero values;
	// the real replies are returned in order.
	Tx(ctx context.Context, fn func(Ops) error) ([]TxResult, error)

	// Pipeline is like Tx without MULTI/EXEC.
	Pipeline(ctx context.Context, fn func(Ops) error) ([]TxResult, error)

	// Watch runs fn with an optimistic lock on keys. fn reads through the
	// Txn and queues its writes with Txn.Exec. ErrTxConflict is returned
	// when a watched key was modified before EXEC.
	Watch(ctx context.Context, fn func(Txn) error, keys ...string) error

	// PubSub returns the publish/subscribe operations
	PubSub() PubSubOps

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}

// Ops bundles the typed operation groups. It is implemented by the template
// itself and by the views handed to Tx, Pipeline and Watch callbacks.
type Ops interface {
	Values() ValueOps
	Hashes() HashOps
	Lists() ListOps
	Sets() SetOps
	ZSets() ZSetOps
	HyperLogLogs() HyperLogLogOps
	Bitmaps() BitmapOps
	Keys() KeyOps
}

// Txn is the view handed to a Watch callback
type Txn interface {
	Ops
	Exec(ctx context.Context, fn func(Ops) error) ([]TxResult, error)
}

// TxResult is a single reply of a transaction or pipeline
type TxResult struct {
	Command string
	Value   any
	Err     error
}

// ValueOps are the string commands
type ValueOps interface {
	Set(ctx context.Context, key string, value any, ttl ...time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl ...time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	GetInt64(ctx context.Context, key string) (int64, error)
	Scan(ctx context.Context, key string, dest any) error
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	DecrBy(ctx context.Context, key string, n int64) (int64, error)
	Append(ctx context.Context, key, value string) (int64, error)
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	MSet(ctx context.Context, pairs map[string]any) error
}

// HashOps are the hash commands
type HashOps interface {
	Put(ctx context.Context, key, field string, value any) error
	PutAll(ctx context.Context, key string, fields map[string]any) error
	Get(ctx context.Context, key, field string) (string, error)
	Scan(ctx context.Context, key, field string, dest any) error
	Entries(ctx context.Context, key string) (map[string]string, error)
	Delete(ctx context.Context, key string, fields ...string) (int64, error)
	HasKey(ctx context.Context, key, field string) (bool, error)
	Len(ctx context.Context, key string) (int64, error)
	Fields(ctx context.Context, key string) ([]string, error)
	IncrBy(ctx context.Context, key, field string, n int64) (int64, error)
}

// ListOps are the list commands
type ListOps interface {
	LeftPush(ctx context.Context, key string, values ...any) (int64, error)
	RightPush(ctx context.Context, key string, values ...any) (int64, error)
	LeftPop(ctx context.Context, key string) (string, error)
	RightPop(ctx context.Context, key string) (string, error)
	Len(ctx context.Context, key string) (int64, error)
	Index(ctx context.Context, key string, index int64) (string, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Trim(ctx context.Context, key string, start, stop int64) error
}

// SetOps are the set commands
type SetOps interface {
	Add(ctx context.Context, key string, members ...any) (int64, error)
	Remove(ctx context.Context, key string, members ...any) (int64, error)
	Members(ctx context.Context, key string) ([]string, error)
	IsMember(ctx context.Context, key string, member any) (bool, error)
	Card(ctx context.Context, key string) (int64, error)
	Pop(ctx context.Context, key string) (string, error)
	RandomMember(ctx context.Context, key string) (string, error)
	Inter(ctx context.Context, keys ...string) ([]string, error)
	Union(ctx context.Context, keys ...string) ([]string, error)
	Diff(ctx context.Context, keys ...string) ([]string, error)
}

// Z is a sorted set member with its score
type Z struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// ZSetOps are the sorted set commands
type ZSetOps interface {
	Add(ctx context.Context, key string, members ...Z) (int64, error)
	Card(ctx context.Context, key string) (int64, error)
	Score(ctx context.Context, key, member string) (float64, error)
	Rank(ctx context.Context, key, member string) (int64, error)
	RevRank(ctx context.Context, key, member string) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	RevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	RangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	IncrBy(ctx context.Context, key, member string, delta float64) (float64, error)
	Remove(ctx context.Context, key string, members ...string) (int64, error)
	Count(ctx context.Context, key string, min, max float64) (int64, error)
}

// HyperLogLogOps are the cardinality estimator commands
type HyperLogLogOps interface {
	// Add reports whether the estimator was modified
	Add(ctx context.Context, key string, elements ...any) (bool, error)
	Count(ctx context.Context, keys ...string) (int64, error)
	Merge(ctx context.Context, dest string, keys ...string) error
	// Union merges keys into dest and returns the estimate of dest
	Union(ctx context.Context, dest string, keys ...string) (int64, error)
}

// BitOperation is the operator of a BITOP command
type BitOperation string

const (
	BitAnd BitOperation = "AND"
	BitOr  BitOperation = "OR"
	BitXor BitOperation = "XOR"
	BitNot BitOperation = "NOT"
)

// BitmapOps are the bit string commands
type BitmapOps interface {
	// SetBit returns the previous value of the bit
	SetBit(ctx context.Context, key string, offset int64, on bool) (bool, error)
	GetBit(ctx context.Context, key string, offset int64) (bool, error)
	BitCount(ctx context.Context, key string) (int64, error)
	BitCountRange(ctx context.Context, key string, start, end int64) (int64, error)
	// BitOp stores the result in dest and returns its length in bytes
	BitOp(ctx context.Context, op BitOperation, dest string, keys ...string) (int64, error)
	BitPos(ctx context.Context, key string, on bool) (int64, error)
}

// KeyOps are the generic key commands
type KeyOps interface {
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Persist(ctx context.Context, key string) (bool, error)
	Type(ctx context.Context, key string) (string, error)
	Rename(ctx context.Context, key, newKey string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	// Clear deletes every key matching pattern and returns how many were removed
	Clear(ctx context.Context, pattern string) (int64, error)
}

// Message is a single pub/sub delivery
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages until closed
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// PubSubOps are the publish/subscribe commands
type PubSubOps interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}
