package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/leafsii/redis-demo/pkg/kv"
)

// hllBatch bounds the number of elements sent in a single PFADD
const hllBatch = 1000

// Default returns the registry of built-in scenarios
func Default() *Registry {
	return NewRegistry(
		Scenario{
			Name:        "strings",
			Description: "Set a counter, read it back, increment and decrement it",
			Keys:        []string{"count"},
			Run:         runStrings,
		},
		Scenario{
			Name:        "hash",
			Description: "Store a user's fields in a hash and read them back",
			Keys:        []string{"user"},
			Run:         runHash,
		},
		Scenario{
			Name:        "list",
			Description: "Left-push three ids and inspect size, head and range",
			Keys:        []string{"ids"},
			Run:         runList,
		},
		Scenario{
			Name:        "set",
			Description: "Add five teachers, pop one at random and recount",
			Keys:        []string{"teachers"},
			Run:         runSet,
		},
		Scenario{
			Name:        "sorted-set",
			Description: "Score five students and query card, score, ranks and ranges",
			Keys:        []string{"students"},
			Run:         runSortedSet,
		},
		Scenario{
			Name:        "transaction",
			Description: "Queue three set additions in MULTI and submit them with EXEC",
			Keys:        []string{"transactional"},
			Run:         runTransaction,
		},
		Scenario{
			Name:        "hyperloglog",
			Description: "Estimate the cardinality of 0..9999 plus 10000 random repeats",
			Keys:        []string{"hll:01"},
			Run:         runHyperLogLog,
		},
		Scenario{
			Name:        "hyperloglog-union",
			Description: "Merge three overlapping estimators and count the union",
			Keys:        []string{"hll:u01", "hll:u02", "hll:u03", "hll:union"},
			Run:         runHyperLogLogUnion,
		},
		Scenario{
			Name:        "bitmap",
			Description: "Set bits 0, 4 and 9, read single bits and count them",
			Keys:        []string{"bm:01"},
			Run:         runBitmap,
		},
		Scenario{
			Name:        "bitmap-or",
			Description: "OR three bitmaps together and count the result",
			Keys:        []string{"bm:02", "bm:03", "bm:04", "bm:or"},
			Run:         runBitmapOr,
		},
	)
}

func runStrings(ctx context.Context, env *Env, rec *Recorder) error {
	values := env.Template.Values()
	key := env.Key("count")

	if err := values.Set(ctx, key, 1); err != nil {
		return err
	}

	n, err := values.GetInt64(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("get", n, int64(1))

	if n, err = values.Incr(ctx, key); err != nil {
		return err
	}
	rec.Expect("incr", n, int64(2))

	if n, err = values.Decr(ctx, key); err != nil {
		return err
	}
	rec.Expect("decr", n, int64(1))
	return nil
}

func runHash(ctx context.Context, env *Env, rec *Recorder) error {
	hashes := env.Template.Hashes()
	key := env.Key("user")

	if err := hashes.Put(ctx, key, "id", 1); err != nil {
		return err
	}
	if err := hashes.Put(ctx, key, "username", "kim"); err != nil {
		return err
	}

	id, err := hashes.Get(ctx, key, "id")
	if err != nil {
		return err
	}
	rec.Observe("id", id)
	rec.Expect("id", id, "1")

	username, err := hashes.Get(ctx, key, "username")
	if err != nil {
		return err
	}
	rec.Observe("username", username)
	rec.Expect("username", username, "kim")
	return nil
}

func runList(ctx context.Context, env *Env, rec *Recorder) error {
	lists := env.Template.Lists()
	key := env.Key("ids")

	for _, id := range []int{101, 102, 103} {
		if _, err := lists.LeftPush(ctx, key, id); err != nil {
			return err
		}
	}

	size, err := lists.Len(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("size", size, int64(3))

	head, err := lists.Index(ctx, key, 0)
	if err != nil {
		return err
	}
	rec.Expect("index 0", head, "103")

	ids, err := lists.Range(ctx, key, 0, 2)
	if err != nil {
		return err
	}
	rec.Expect("range 0..2", ids, []string{"103", "102", "101"})
	return nil
}

func runSet(ctx context.Context, env *Env, rec *Recorder) error {
	sets := env.Template.Sets()
	key := env.Key("teachers")

	if _, err := sets.Add(ctx, key, "Kim", "Bob", "Jack", "Rose", "Mike"); err != nil {
		return err
	}

	card, err := sets.Card(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("size", card, int64(5))

	popped, err := sets.Pop(ctx, key)
	if err != nil {
		return err
	}
	rec.Observe("popped", popped)

	members, err := sets.Members(ctx, key)
	if err != nil {
		return err
	}
	rec.Observe("members", members)

	if card, err = sets.Card(ctx, key); err != nil {
		return err
	}
	rec.Expect("size after pop", card, int64(4))
	return nil
}

func runSortedSet(ctx context.Context, env *Env, rec *Recorder) error {
	zsets := env.Template.ZSets()
	key := env.Key("students")

	students := []kv.Z{
		{Member: "Kim", Score: 80},
		{Member: "Bob", Score: 60},
		{Member: "Jack", Score: 100},
		{Member: "Rose", Score: 40},
		{Member: "Mike", Score: 90},
	}
	for _, s := range students {
		if _, err := zsets.Add(ctx, key, s); err != nil {
			return err
		}
	}

	card, err := zsets.Card(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("card", card, int64(5))

	score, err := zsets.Score(ctx, key, "Kim")
	if err != nil {
		return err
	}
	rec.Expect("score Kim", score, float64(80))

	rank, err := zsets.Rank(ctx, key, "Kim")
	if err != nil {
		return err
	}
	rec.Expect("rank Kim", rank, int64(2))

	revRank, err := zsets.RevRank(ctx, key, "Kim")
	if err != nil {
		return err
	}
	rec.Expect("reverse rank Kim", revRank, int64(2))

	low, err := zsets.Range(ctx, key, 0, 2)
	if err != nil {
		return err
	}
	rec.ExpectSet("range 0..2", low, []string{"Rose", "Bob", "Kim"})

	high, err := zsets.RevRange(ctx, key, 0, 2)
	if err != nil {
		return err
	}
	rec.ExpectSet("reverse range 0..2", high, []string{"Jack", "Mike", "Kim"})
	return nil
}

func runTransaction(ctx context.Context, env *Env, rec *Recorder) error {
	key := env.Key("transactional")

	replies, err := env.Template.Tx(ctx, func(ops kv.Ops) error {
		for _, name := range []string{"Kim", "Bob", "Jack"} {
			if _, err := ops.Sets().Add(ctx, key, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	values := make([]any, 0, len(replies))
	for _, r := range replies {
		if r.Err != nil {
			return r.Err
		}
		values = append(values, r.Value)
	}
	rec.Observe("exec", values)
	rec.Expect("replies", len(replies), 3)

	card, err := env.Template.Sets().Card(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("card", card, int64(3))
	return nil
}

func runHyperLogLog(ctx context.Context, env *Env, rec *Recorder) error {
	hll := env.Template.HyperLogLogs()
	key := env.Key("hll:01")

	elements := make([]any, 0, 20000)
	for i := 0; i < 10000; i++ {
		elements = append(elements, i)
	}
	for i := 0; i < 10000; i++ {
		elements = append(elements, rand.Intn(10000))
	}
	if err := addBatched(ctx, hll, key, elements); err != nil {
		return err
	}

	size, err := hll.Count(ctx, key)
	if err != nil {
		return err
	}
	rec.Observe("count", size)
	rec.Within("count", float64(size), 10000, 0.02)
	return nil
}

func runHyperLogLogUnion(ctx context.Context, env *Env, rec *Recorder) error {
	hll := env.Template.HyperLogLogs()
	sources := []struct {
		key      string
		from, to int
	}{
		{env.Key("hll:u01"), 0, 100},
		{env.Key("hll:u02"), 100, 200},
		{env.Key("hll:u03"), 50, 150},
	}

	keys := make([]string, 0, len(sources))
	for _, src := range sources {
		elements := make([]any, 0, src.to-src.from)
		for i := src.from; i < src.to; i++ {
			elements = append(elements, i)
		}
		if err := addBatched(ctx, hll, src.key, elements); err != nil {
			return err
		}
		keys = append(keys, src.key)
	}

	size, err := hll.Union(ctx, env.Key("hll:union"), keys...)
	if err != nil {
		return err
	}
	rec.Observe("union count", size)
	rec.Within("union count", float64(size), 200, 0.05)
	return nil
}

func addBatched(ctx context.Context, hll kv.HyperLogLogOps, key string, elements []any) error {
	for start := 0; start < len(elements); start += hllBatch {
		end := min(start+hllBatch, len(elements))
		if _, err := hll.Add(ctx, key, elements[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

func runBitmap(ctx context.Context, env *Env, rec *Recorder) error {
	bitmaps := env.Template.Bitmaps()
	key := env.Key("bm:01")

	if err := setBits(ctx, bitmaps, key, 0, 4, 9); err != nil {
		return err
	}

	if err := expectBits(ctx, bitmaps, rec, key, map[int64]bool{0: true, 1: false, 4: true, 9: true}); err != nil {
		return err
	}

	count, err := bitmaps.BitCount(ctx, key)
	if err != nil {
		return err
	}
	rec.Expect("bitcount", count, int64(3))
	return nil
}

func runBitmapOr(ctx context.Context, env *Env, rec *Recorder) error {
	bitmaps := env.Template.Bitmaps()
	sources := []struct {
		key  string
		bits []int64
	}{
		{env.Key("bm:02"), []int64{0, 1, 2}},
		{env.Key("bm:03"), []int64{0, 2, 4}},
		{env.Key("bm:04"), []int64{4, 5, 6}},
	}

	keys := make([]string, 0, len(sources))
	for _, src := range sources {
		if err := setBits(ctx, bitmaps, src.key, src.bits...); err != nil {
			return err
		}
		keys = append(keys, src.key)
	}

	dest := env.Key("bm:or")
	if _, err := bitmaps.BitOp(ctx, kv.BitOr, dest, keys...); err != nil {
		return err
	}

	count, err := bitmaps.BitCount(ctx, dest)
	if err != nil {
		return err
	}
	rec.Expect("bitcount", count, int64(6))

	return expectBits(ctx, bitmaps, rec, dest, map[int64]bool{
		0: true, 1: true, 2: true, 3: false, 4: true, 5: true, 6: true,
	})
}

func setBits(ctx context.Context, bitmaps kv.BitmapOps, key string, offsets ...int64) error {
	for _, offset := range offsets {
		if _, err := bitmaps.SetBit(ctx, key, offset, true); err != nil {
			return err
		}
	}
	return nil
}

// expectBits checks offsets in ascending order so reports are stable
func expectBits(ctx context.Context, bitmaps kv.BitmapOps, rec *Recorder, key string, want map[int64]bool) error {
	offsets := make([]int64, 0, len(want))
	for offset := range want {
		offsets = append(offsets, offset)
	}
	slices.Sort(offsets)

	for _, offset := range offsets {
		bit, err := bitmaps.GetBit(ctx, key, offset)
		if err != nil {
			return err
		}
		rec.Expect(fmt.Sprintf("bit %d", offset), bit, want[offset])
	}
	return nil
}
