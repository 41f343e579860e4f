package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// errQueued is returned by operations that need a reply before they can
// continue, which is not available while commands are being queued
var errQueued = errors.New("operation not supported inside a transaction or pipeline")

// ops implements every operation group on top of redis.Cmdable so the same
// code serves a client, a WATCH transaction and a queued pipeline
type ops struct {
	cmd    redis.Cmdable
	codec  kv.Codec
	queued bool
}

func (o *ops) Values() kv.ValueOps             { return valueOps{o} }
func (o *ops) Hashes() kv.HashOps              { return hashOps{o} }
func (o *ops) Lists() kv.ListOps               { return listOps{o} }
func (o *ops) Sets() kv.SetOps                 { return setOps{o} }
func (o *ops) ZSets() kv.ZSetOps               { return zsetOps{o} }
func (o *ops) HyperLogLogs() kv.HyperLogLogOps { return hllOps{o} }
func (o *ops) Bitmaps() kv.BitmapOps           { return bitmapOps{o} }
func (o *ops) Keys() kv.KeyOps                 { return keyOps{o} }

func expiration(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 {
		return ttl[0]
	}
	return 0
}

// Value operations

type valueOps struct{ *ops }

func (v valueOps) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	enc, err := kv.Encode(v.codec, value)
	if err != nil {
		return err
	}
	return wrapError(v.cmd.Set(ctx, key, enc, expiration(ttl)).Err())
}

func (v valueOps) SetNX(ctx context.Context, key string, value any, ttl ...time.Duration) (bool, error) {
	enc, err := kv.Encode(v.codec, value)
	if err != nil {
		return false, err
	}
	ok, err := v.cmd.SetNX(ctx, key, enc, expiration(ttl)).Result()
	return ok, wrapError(err)
}

func (v valueOps) Get(ctx context.Context, key string) (string, error) {
	result, err := v.cmd.Get(ctx, key).Result()
	return result, wrapError(err)
}

func (v valueOps) GetInt64(ctx context.Context, key string) (int64, error) {
	cmd := v.cmd.Get(ctx, key)
	if v.queued {
		return 0, nil
	}
	n, err := cmd.Int64()
	return n, wrapError(err)
}

func (v valueOps) Scan(ctx context.Context, key string, dest any) error {
	cmd := v.cmd.Get(ctx, key)
	if v.queued {
		return nil
	}
	data, err := cmd.Result()
	if err != nil {
		return wrapError(err)
	}
	return kv.Decode(v.codec, data, dest)
}

func (v valueOps) Incr(ctx context.Context, key string) (int64, error) {
	n, err := v.cmd.Incr(ctx, key).Result()
	return n, wrapError(err)
}

func (v valueOps) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	result, err := v.cmd.IncrBy(ctx, key, n).Result()
	return result, wrapError(err)
}

func (v valueOps) Decr(ctx context.Context, key string) (int64, error) {
	n, err := v.cmd.Decr(ctx, key).Result()
	return n, wrapError(err)
}

func (v valueOps) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	result, err := v.cmd.DecrBy(ctx, key, n).Result()
	return result, wrapError(err)
}

func (v valueOps) Append(ctx context.Context, key, value string) (int64, error) {
	n, err := v.cmd.Append(ctx, key, value).Result()
	return n, wrapError(err)
}

func (v valueOps) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	result, err := v.cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapError(err)
	}

	values := make([]*string, len(result))
	for i, value := range result {
		// nil values remain nil (representing missing keys)
		if str, ok := value.(string); ok {
			values[i] = &str
		}
	}
	return values, nil
}

func (v valueOps) MSet(ctx context.Context, pairs map[string]any) error {
	if len(pairs) == 0 {
		return nil
	}
	args, err := flatten(v.codec, pairs)
	if err != nil {
		return err
	}
	return wrapError(v.cmd.MSet(ctx, args...).Err())
}

// flatten turns a map into key, value, key, value... with keys in order
func flatten(codec kv.Codec, pairs map[string]any) ([]any, error) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(pairs)*2)
	for _, k := range keys {
		enc, err := kv.Encode(codec, pairs[k])
		if err != nil {
			return nil, err
		}
		args = append(args, k, enc)
	}
	return args, nil
}

// Hash operations

type hashOps struct{ *ops }

func (h hashOps) Put(ctx context.Context, key, field string, value any) error {
	enc, err := kv.Encode(h.codec, value)
	if err != nil {
		return err
	}
	return wrapError(h.cmd.HSet(ctx, key, field, enc).Err())
}

func (h hashOps) PutAll(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	args, err := flatten(h.codec, fields)
	if err != nil {
		return err
	}
	return wrapError(h.cmd.HSet(ctx, key, args...).Err())
}

func (h hashOps) Get(ctx context.Context, key, field string) (string, error) {
	result, err := h.cmd.HGet(ctx, key, field).Result()
	return result, wrapError(err)
}

func (h hashOps) Scan(ctx context.Context, key, field string, dest any) error {
	cmd := h.cmd.HGet(ctx, key, field)
	if h.queued {
		return nil
	}
	data, err := cmd.Result()
	if err != nil {
		return wrapError(err)
	}
	return kv.Decode(h.codec, data, dest)
}

func (h hashOps) Entries(ctx context.Context, key string) (map[string]string, error) {
	result, err := h.cmd.HGetAll(ctx, key).Result()
	return result, wrapError(err)
}

func (h hashOps) Delete(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := h.cmd.HDel(ctx, key, fields...).Result()
	return n, wrapError(err)
}

func (h hashOps) HasKey(ctx context.Context, key, field string) (bool, error) {
	ok, err := h.cmd.HExists(ctx, key, field).Result()
	return ok, wrapError(err)
}

func (h hashOps) Len(ctx context.Context, key string) (int64, error) {
	n, err := h.cmd.HLen(ctx, key).Result()
	return n, wrapError(err)
}

func (h hashOps) Fields(ctx context.Context, key string) ([]string, error) {
	fields, err := h.cmd.HKeys(ctx, key).Result()
	return fields, wrapError(err)
}

func (h hashOps) IncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	result, err := h.cmd.HIncrBy(ctx, key, field, n).Result()
	return result, wrapError(err)
}

// List operations

type listOps struct{ *ops }

func (l listOps) LeftPush(ctx context.Context, key string, values ...any) (int64, error) {
	args, err := kv.EncodeAll(l.codec, values)
	if err != nil {
		return 0, err
	}
	n, err := l.cmd.LPush(ctx, key, args...).Result()
	return n, wrapError(err)
}

func (l listOps) RightPush(ctx context.Context, key string, values ...any) (int64, error) {
	args, err := kv.EncodeAll(l.codec, values)
	if err != nil {
		return 0, err
	}
	n, err := l.cmd.RPush(ctx, key, args...).Result()
	return n, wrapError(err)
}

func (l listOps) LeftPop(ctx context.Context, key string) (string, error) {
	result, err := l.cmd.LPop(ctx, key).Result()
	return result, wrapError(err)
}

func (l listOps) RightPop(ctx context.Context, key string) (string, error) {
	result, err := l.cmd.RPop(ctx, key).Result()
	return result, wrapError(err)
}

func (l listOps) Len(ctx context.Context, key string) (int64, error) {
	n, err := l.cmd.LLen(ctx, key).Result()
	return n, wrapError(err)
}

func (l listOps) Index(ctx context.Context, key string, index int64) (string, error) {
	result, err := l.cmd.LIndex(ctx, key, index).Result()
	return result, wrapError(err)
}

func (l listOps) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	result, err := l.cmd.LRange(ctx, key, start, stop).Result()
	return result, wrapError(err)
}

func (l listOps) Trim(ctx context.Context, key string, start, stop int64) error {
	return wrapError(l.cmd.LTrim(ctx, key, start, stop).Err())
}

// Set operations

type setOps struct{ *ops }

func (s setOps) Add(ctx context.Context, key string, members ...any) (int64, error) {
	args, err := kv.EncodeAll(s.codec, members)
	if err != nil {
		return 0, err
	}
	n, err := s.cmd.SAdd(ctx, key, args...).Result()
	return n, wrapError(err)
}

func (s setOps) Remove(ctx context.Context, key string, members ...any) (int64, error) {
	args, err := kv.EncodeAll(s.codec, members)
	if err != nil {
		return 0, err
	}
	n, err := s.cmd.SRem(ctx, key, args...).Result()
	return n, wrapError(err)
}

func (s setOps) Members(ctx context.Context, key string) ([]string, error) {
	members, err := s.cmd.SMembers(ctx, key).Result()
	return members, wrapError(err)
}

func (s setOps) IsMember(ctx context.Context, key string, member any) (bool, error) {
	enc, err := kv.Encode(s.codec, member)
	if err != nil {
		return false, err
	}
	ok, err := s.cmd.SIsMember(ctx, key, enc).Result()
	return ok, wrapError(err)
}

func (s setOps) Card(ctx context.Context, key string) (int64, error) {
	n, err := s.cmd.SCard(ctx, key).Result()
	return n, wrapError(err)
}

func (s setOps) Pop(ctx context.Context, key string) (string, error) {
	member, err := s.cmd.SPop(ctx, key).Result()
	return member, wrapError(err)
}

func (s setOps) RandomMember(ctx context.Context, key string) (string, error) {
	member, err := s.cmd.SRandMember(ctx, key).Result()
	return member, wrapError(err)
}

func (s setOps) Inter(ctx context.Context, keys ...string) ([]string, error) {
	members, err := s.cmd.SInter(ctx, keys...).Result()
	return members, wrapError(err)
}

func (s setOps) Union(ctx context.Context, keys ...string) ([]string, error) {
	members, err := s.cmd.SUnion(ctx, keys...).Result()
	return members, wrapError(err)
}

func (s setOps) Diff(ctx context.Context, keys ...string) ([]string, error) {
	members, err := s.cmd.SDiff(ctx, keys...).Result()
	return members, wrapError(err)
}

// Sorted set operations

type zsetOps struct{ *ops }

func (z zsetOps) Add(ctx context.Context, key string, members ...kv.Z) (int64, error) {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	n, err := z.cmd.ZAdd(ctx, key, zs...).Result()
	return n, wrapError(err)
}

func (z zsetOps) Card(ctx context.Context, key string) (int64, error) {
	n, err := z.cmd.ZCard(ctx, key).Result()
	return n, wrapError(err)
}

func (z zsetOps) Score(ctx context.Context, key, member string) (float64, error) {
	score, err := z.cmd.ZScore(ctx, key, member).Result()
	return score, wrapError(err)
}

func (z zsetOps) Rank(ctx context.Context, key, member string) (int64, error) {
	rank, err := z.cmd.ZRank(ctx, key, member).Result()
	return rank, wrapError(err)
}

func (z zsetOps) RevRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := z.cmd.ZRevRank(ctx, key, member).Result()
	return rank, wrapError(err)
}

func (z zsetOps) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := z.cmd.ZRange(ctx, key, start, stop).Result()
	return members, wrapError(err)
}

func (z zsetOps) RevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := z.cmd.ZRevRange(ctx, key, start, stop).Result()
	return members, wrapError(err)
}

func (z zsetOps) RangeWithScores(ctx context.Context, key string, start, stop int64) ([]kv.Z, error) {
	result, err := z.cmd.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapError(err)
	}
	return fromZ(result), nil
}

func (z zsetOps) IncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	score, err := z.cmd.ZIncrBy(ctx, key, delta, member).Result()
	return score, wrapError(err)
}

func (z zsetOps) Remove(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := z.cmd.ZRem(ctx, key, args...).Result()
	return n, wrapError(err)
}

func (z zsetOps) Count(ctx context.Context, key string, min, max float64) (int64, error) {
	n, err := z.cmd.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
	return n, wrapError(err)
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func fromZ(zs []redis.Z) []kv.Z {
	out := make([]kv.Z, len(zs))
	for i, z := range zs {
		out[i] = kv.Z{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	return out
}

// HyperLogLog operations

type hllOps struct{ *ops }

func (h hllOps) Add(ctx context.Context, key string, elements ...any) (bool, error) {
	args, err := kv.EncodeAll(h.codec, elements)
	if err != nil {
		return false, err
	}
	n, err := h.cmd.PFAdd(ctx, key, args...).Result()
	return n == 1, wrapError(err)
}

func (h hllOps) Count(ctx context.Context, keys ...string) (int64, error) {
	n, err := h.cmd.PFCount(ctx, keys...).Result()
	return n, wrapError(err)
}

func (h hllOps) Merge(ctx context.Context, dest string, keys ...string) error {
	return wrapError(h.cmd.PFMerge(ctx, dest, keys...).Err())
}

func (h hllOps) Union(ctx context.Context, dest string, keys ...string) (int64, error) {
	if err := h.Merge(ctx, dest, keys...); err != nil {
		return 0, err
	}
	return h.Count(ctx, dest)
}

// Bitmap operations

type bitmapOps struct{ *ops }

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}

func (b bitmapOps) SetBit(ctx context.Context, key string, offset int64, on bool) (bool, error) {
	prev, err := b.cmd.SetBit(ctx, key, offset, bit(on)).Result()
	return prev == 1, wrapError(err)
}

func (b bitmapOps) GetBit(ctx context.Context, key string, offset int64) (bool, error) {
	v, err := b.cmd.GetBit(ctx, key, offset).Result()
	return v == 1, wrapError(err)
}

func (b bitmapOps) BitCount(ctx context.Context, key string) (int64, error) {
	n, err := b.cmd.BitCount(ctx, key, nil).Result()
	return n, wrapError(err)
}

func (b bitmapOps) BitCountRange(ctx context.Context, key string, start, end int64) (int64, error) {
	n, err := b.cmd.BitCount(ctx, key, &redis.BitCount{Start: start, End: end}).Result()
	return n, wrapError(err)
}

func (b bitmapOps) BitOp(ctx context.Context, op kv.BitOperation, dest string, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, fmt.Errorf("bitop %s: no source keys", op)
	}

	var cmd *redis.IntCmd
	switch op {
	case kv.BitAnd:
		cmd = b.cmd.BitOpAnd(ctx, dest, keys...)
	case kv.BitOr:
		cmd = b.cmd.BitOpOr(ctx, dest, keys...)
	case kv.BitXor:
		cmd = b.cmd.BitOpXor(ctx, dest, keys...)
	case kv.BitNot:
		if len(keys) != 1 {
			return 0, fmt.Errorf("bitop NOT takes exactly one source key, got %d", len(keys))
		}
		cmd = b.cmd.BitOpNot(ctx, dest, keys[0])
	default:
		return 0, fmt.Errorf("unsupported bit operation: %s", op)
	}
	n, err := cmd.Result()
	return n, wrapError(err)
}

func (b bitmapOps) BitPos(ctx context.Context, key string, on bool) (int64, error) {
	pos, err := b.cmd.BitPos(ctx, key, int64(bit(on))).Result()
	return pos, wrapError(err)
}

// Key operations

type keyOps struct{ *ops }

func (k keyOps) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := k.cmd.Del(ctx, keys...).Result()
	return n, wrapError(err)
}

func (k keyOps) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := k.cmd.Exists(ctx, keys...).Result()
	return n, wrapError(err)
}

func (k keyOps) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := k.cmd.Expire(ctx, key, ttl).Result()
	return ok, wrapError(err)
}

// TTL returns -1 for a key without expiry and ErrNotFound for a missing key
func (k keyOps) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := k.cmd.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapError(err)
	}
	if k.queued {
		return ttl, nil
	}

	// The client passes -2 and -1 through unscaled
	if ttl == -2 {
		return 0, kv.ErrNotFound
	}
	return ttl, nil
}

func (k keyOps) Persist(ctx context.Context, key string) (bool, error) {
	ok, err := k.cmd.Persist(ctx, key).Result()
	return ok, wrapError(err)
}

func (k keyOps) Type(ctx context.Context, key string) (string, error) {
	t, err := k.cmd.Type(ctx, key).Result()
	return t, wrapError(err)
}

func (k keyOps) Rename(ctx context.Context, key, newKey string) error {
	return wrapError(k.cmd.Rename(ctx, key, newKey).Err())
}

func (k keyOps) Scan(ctx context.Context, pattern string) ([]string, error) {
	if k.queued {
		return nil, errQueued
	}

	var keys []string
	iter := k.cmd.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError(err)
	}
	return keys, nil
}

const clearBatch = 500

func (k keyOps) Clear(ctx context.Context, pattern string) (int64, error) {
	keys, err := k.Scan(ctx, pattern)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(keys); start += clearBatch {
		end := min(start+clearBatch, len(keys))
		n, err := k.Delete(ctx, keys[start:end]...)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}
