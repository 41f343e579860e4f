// Package kvtest provides conformance tests for kv.Template implementations
package kvtest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TemplateFactory creates a fresh Template instance for testing. Keys
// under "test:" may be cleared by the suite.
type TemplateFactory func(t *testing.T) kv.Template

type testCase struct {
	name string
	test func(t *testing.T, tpl kv.Template)
}

// RunConformanceTests runs all conformance tests against a Template implementation
func RunConformanceTests(t *testing.T, factory TemplateFactory) {
	groups := []struct {
		name  string
		cases []testCase
	}{
		{"ValueOperations", []testCase{
			{"SetGet", testSetGet},
			{"GetNonExistent", testGetNonExistent},
			{"Counter", testCounter},
			{"ScanStruct", testScanStruct},
			{"SetNX", testSetNX},
			{"MultiKey", testMultiKey},
		}},
		{"HashOperations", []testCase{
			{"PutGet", testHashPutGet},
			{"Entries", testHashEntries},
			{"MissingField", testHashMissingField},
		}},
		{"ListOperations", []testCase{
			{"LeftPush", testListLeftPush},
			{"PopAndTrim", testListPopAndTrim},
		}},
		{"SetOperations", []testCase{
			{"AddPop", testSetAddPop},
			{"Algebra", testSetAlgebra},
		}},
		{"SortedSetOperations", []testCase{
			{"RankAndRange", testZSetRankAndRange},
			{"ScoresAndCount", testZSetScoresAndCount},
		}},
		{"HyperLogLogOperations", []testCase{
			{"Count", testHyperLogLogCount},
			{"Union", testHyperLogLogUnion},
		}},
		{"BitmapOperations", []testCase{
			{"SetGetCount", testBitmapSetGetCount},
			{"BitOp", testBitmapBitOp},
		}},
		{"KeyOperations", []testCase{
			{"DeleteExists", testDeleteExists},
			{"TTL", testTTL},
			{"Clear", testClear},
		}},
		{"Transactions", []testCase{
			{"Tx", testTx},
			{"TxCallbackError", testTxCallbackError},
			{"Pipeline", testPipeline},
			{"WatchConflict", testWatchConflict},
		}},
		{"PubSub", []testCase{
			{"PublishSubscribe", testPublishSubscribe},
		}},
		{"HealthCheck", []testCase{
			{"Ping", testPing},
		}},
	}

	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			for _, tt := range g.cases {
				t.Run(tt.name, func(t *testing.T) {
					tpl := factory(t)
					defer tpl.Close()
					_, err := tpl.Keys().Clear(context.Background(), "test:*")
					require.NoError(t, err)
					tt.test(t, tpl)
				})
			}
		})
	}
}

func testSetGet(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:string"

	require.NoError(t, tpl.Values().Set(ctx, key, "hello world"))

	result, err := tpl.Values().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func testGetNonExistent(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	_, err := tpl.Values().Get(ctx, "test:nonexistent")
	assert.True(t, errors.Is(err, kv.ErrNotFound), "expected ErrNotFound, got %v", err)

	_, err = tpl.Values().GetInt64(ctx, "test:nonexistent")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testCounter(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:count"

	require.NoError(t, tpl.Values().Set(ctx, key, 1))

	n, err := tpl.Values().GetInt64(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tpl.Values().Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = tpl.Values().Decr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tpl.Values().IncrBy(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	n, err = tpl.Values().DecrBy(ctx, key, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

type user struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func testScanStruct(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:user:json"

	require.NoError(t, tpl.Values().Set(ctx, key, user{ID: 1, Username: "kim"}))

	var got user
	require.NoError(t, tpl.Values().Scan(ctx, key, &got))
	assert.Equal(t, user{ID: 1, Username: "kim"}, got)

	var n int
	require.NoError(t, tpl.Values().Set(ctx, "test:int", 42))
	require.NoError(t, tpl.Values().Scan(ctx, "test:int", &n))
	assert.Equal(t, 42, n)

	err := tpl.Values().Scan(ctx, "test:missing", &got)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testSetNX(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:nx"

	ok, err := tpl.Values().SetNX(ctx, key, "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tpl.Values().SetNX(ctx, key, "second")
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := tpl.Values().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func testMultiKey(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	require.NoError(t, tpl.Values().MSet(ctx, map[string]any{
		"test:m1": "a",
		"test:m2": 2,
	}))

	vals, err := tpl.Values().MGet(ctx, "test:m1", "test:m2", "test:m3")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.NotNil(t, vals[0])
	require.NotNil(t, vals[1])
	assert.Equal(t, "a", *vals[0])
	assert.Equal(t, "2", *vals[1])
	assert.Nil(t, vals[2])

	n, err := tpl.Values().Append(ctx, "test:m1", "bc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func testHashPutGet(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:user"

	require.NoError(t, tpl.Hashes().Put(ctx, key, "id", 1))
	require.NoError(t, tpl.Hashes().Put(ctx, key, "username", "kim"))

	id, err := tpl.Hashes().Get(ctx, key, "id")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	var idNum int64
	require.NoError(t, tpl.Hashes().Scan(ctx, key, "id", &idNum))
	assert.Equal(t, int64(1), idNum)

	name, err := tpl.Hashes().Get(ctx, key, "username")
	require.NoError(t, err)
	assert.Equal(t, "kim", name)

	n, err := tpl.Hashes().IncrBy(ctx, key, "id", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func testHashEntries(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:hash"

	require.NoError(t, tpl.Hashes().PutAll(ctx, key, map[string]any{
		"a": "1",
		"b": "2",
		"c": "3",
	}))

	entries, err := tpl.Hashes().Entries(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, entries)

	n, err := tpl.Hashes().Len(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	fields, err := tpl.Hashes().Fields(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, fields)

	deleted, err := tpl.Hashes().Delete(ctx, key, "a", "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ok, err := tpl.Hashes().HasKey(ctx, key, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testHashMissingField(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	_, err := tpl.Hashes().Get(ctx, "test:nohash", "id")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	entries, err := tpl.Hashes().Entries(ctx, "test:nohash")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testListLeftPush(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:ids"

	for _, id := range []int{101, 102, 103} {
		_, err := tpl.Lists().LeftPush(ctx, key, id)
		require.NoError(t, err)
	}

	n, err := tpl.Lists().Len(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	first, err := tpl.Lists().Index(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "103", first)

	values, err := tpl.Lists().Range(ctx, key, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "102", "101"}, values)

	_, err = tpl.Lists().Index(ctx, key, 10)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testListPopAndTrim(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:queue"

	n, err := tpl.Lists().RightPush(ctx, key, "a", "b", "c", "d")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	left, err := tpl.Lists().LeftPop(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a", left)

	right, err := tpl.Lists().RightPop(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "d", right)

	require.NoError(t, tpl.Lists().Trim(ctx, key, 0, 0))
	values, err := tpl.Lists().Range(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, values)

	_, err = tpl.Lists().LeftPop(ctx, "test:emptyqueue")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testSetAddPop(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:teachers"
	names := []any{"Kim", "Bob", "Jack", "Rose", "Mike"}

	added, err := tpl.Sets().Add(ctx, key, names...)
	require.NoError(t, err)
	assert.Equal(t, int64(5), added)

	card, err := tpl.Sets().Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), card)

	popped, err := tpl.Sets().Pop(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, []string{"Kim", "Bob", "Jack", "Rose", "Mike"}, popped)

	ok, err := tpl.Sets().IsMember(ctx, key, popped)
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := tpl.Sets().Members(ctx, key)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	card, err = tpl.Sets().Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), card)

	_, err = tpl.Sets().Pop(ctx, "test:noset")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testSetAlgebra(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	_, err := tpl.Sets().Add(ctx, "test:s1", "a", "b", "c")
	require.NoError(t, err)
	_, err = tpl.Sets().Add(ctx, "test:s2", "b", "c", "d")
	require.NoError(t, err)

	inter, err := tpl.Sets().Inter(ctx, "test:s1", "test:s2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, inter)

	union, err := tpl.Sets().Union(ctx, "test:s1", "test:s2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, union)

	diff, err := tpl.Sets().Diff(ctx, "test:s1", "test:s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, diff)

	removed, err := tpl.Sets().Remove(ctx, "test:s1", "a", "zz")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func addStudents(t *testing.T, tpl kv.Template, key string) {
	t.Helper()
	_, err := tpl.ZSets().Add(context.Background(), key,
		kv.Z{Member: "Kim", Score: 80},
		kv.Z{Member: "Bob", Score: 60},
		kv.Z{Member: "Jack", Score: 100},
		kv.Z{Member: "Rose", Score: 40},
		kv.Z{Member: "Mike", Score: 90},
	)
	require.NoError(t, err)
}

func testZSetRankAndRange(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:students"
	addStudents(t, tpl, key)

	card, err := tpl.ZSets().Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), card)

	score, err := tpl.ZSets().Score(ctx, key, "Kim")
	require.NoError(t, err)
	assert.Equal(t, 80.0, score)

	rank, err := tpl.ZSets().Rank(ctx, key, "Kim")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	revRank, err := tpl.ZSets().RevRank(ctx, key, "Kim")
	require.NoError(t, err)
	assert.Equal(t, int64(2), revRank)

	low, err := tpl.ZSets().Range(ctx, key, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rose", "Bob", "Kim"}, low)

	high, err := tpl.ZSets().RevRange(ctx, key, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jack", "Mike", "Kim"}, high)

	_, err = tpl.ZSets().Rank(ctx, key, "Nobody")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, err = tpl.ZSets().Score(ctx, key, "Nobody")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testZSetScoresAndCount(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:scores"
	addStudents(t, tpl, key)

	withScores, err := tpl.ZSets().RangeWithScores(ctx, key, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []kv.Z{{Member: "Rose", Score: 40}, {Member: "Bob", Score: 60}}, withScores)

	score, err := tpl.ZSets().IncrBy(ctx, key, "Rose", 45)
	require.NoError(t, err)
	assert.Equal(t, 85.0, score)

	n, err := tpl.ZSets().Count(ctx, key, 80, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	removed, err := tpl.ZSets().Remove(ctx, key, "Rose", "Nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func testHyperLogLogCount(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:hll:01"

	elements := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		elements = append(elements, i)
	}
	changed, err := tpl.HyperLogLogs().Add(ctx, key, elements...)
	require.NoError(t, err)
	assert.True(t, changed)

	// Re-adding the same elements never changes the estimate
	changed, err = tpl.HyperLogLogs().Add(ctx, key, elements[:10]...)
	require.NoError(t, err)
	assert.False(t, changed)

	count, err := tpl.HyperLogLogs().Count(ctx, key)
	require.NoError(t, err)
	assert.InEpsilon(t, 1000, count, 0.03)
}

func testHyperLogLogUnion(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	ranges := map[string][2]int{
		"test:hll:u1": {0, 100},
		"test:hll:u2": {100, 200},
		"test:hll:u3": {50, 150},
	}
	keys := make([]string, 0, len(ranges))
	for key, r := range ranges {
		keys = append(keys, key)
		for i := r[0]; i < r[1]; i++ {
			_, err := tpl.HyperLogLogs().Add(ctx, key, i)
			require.NoError(t, err)
		}
	}
	sort.Strings(keys)

	count, err := tpl.HyperLogLogs().Union(ctx, "test:hll:union", keys...)
	require.NoError(t, err)
	assert.InDelta(t, 200, count, 10)

	direct, err := tpl.HyperLogLogs().Count(ctx, keys...)
	require.NoError(t, err)
	assert.Equal(t, count, direct)
}

func testBitmapSetGetCount(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:bm:01"

	for _, offset := range []int64{0, 4, 9} {
		prev, err := tpl.Bitmaps().SetBit(ctx, key, offset, true)
		require.NoError(t, err)
		assert.False(t, prev)
	}

	expected := map[int64]bool{0: true, 1: false, 4: true, 9: true}
	for offset, want := range expected {
		got, err := tpl.Bitmaps().GetBit(ctx, key, offset)
		require.NoError(t, err)
		assert.Equal(t, want, got, "bit %d", offset)
	}

	count, err := tpl.Bitmaps().BitCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Bits 0..7 live in byte 0
	count, err = tpl.Bitmaps().BitCountRange(ctx, key, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	pos, err := tpl.Bitmaps().BitPos(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)
}

func testBitmapBitOp(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	sources := map[string][]int64{
		"test:bm:02": {0, 1, 2},
		"test:bm:03": {0, 2, 4},
		"test:bm:04": {4, 5, 6},
	}
	for key, offsets := range sources {
		for _, offset := range offsets {
			_, err := tpl.Bitmaps().SetBit(ctx, key, offset, true)
			require.NoError(t, err)
		}
	}

	size, err := tpl.Bitmaps().BitOp(ctx, kv.BitOr, "test:bm:or", "test:bm:02", "test:bm:03", "test:bm:04")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	count, err := tpl.Bitmaps().BitCount(ctx, "test:bm:or")
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	for offset, want := range []bool{true, true, true, false, true, true, true} {
		got, err := tpl.Bitmaps().GetBit(ctx, "test:bm:or", int64(offset))
		require.NoError(t, err)
		assert.Equal(t, want, got, "bit %d", offset)
	}

	_, err = tpl.Bitmaps().BitOp(ctx, kv.BitAnd, "test:bm:and", "test:bm:02", "test:bm:03")
	require.NoError(t, err)
	count, err = tpl.Bitmaps().BitCount(ctx, "test:bm:and")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = tpl.Bitmaps().BitOp(ctx, kv.BitNot, "test:bm:not", "test:bm:02", "test:bm:03")
	assert.Error(t, err)
}

func testDeleteExists(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key1, key2 := "test:del1", "test:del2"

	require.NoError(t, tpl.Values().Set(ctx, key1, "x"))
	require.NoError(t, tpl.Values().Set(ctx, key2, "y"))

	count, err := tpl.Keys().Exists(ctx, key1, key2, "test:del3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := tpl.Keys().Delete(ctx, key1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = tpl.Values().Get(ctx, key1)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	typ, err := tpl.Keys().Type(ctx, key2)
	require.NoError(t, err)
	assert.Equal(t, "string", typ)

	require.NoError(t, tpl.Keys().Rename(ctx, key2, "test:renamed"))
	val, err := tpl.Values().Get(ctx, "test:renamed")
	require.NoError(t, err)
	assert.Equal(t, "y", val)
}

func testTTL(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:ttl-check"

	_, err := tpl.Keys().TTL(ctx, key)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, tpl.Values().Set(ctx, key, "v"))
	ttl, err := tpl.Keys().TTL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	ok, err := tpl.Keys().Expire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err = tpl.Keys().TTL(ctx, key)
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute, "unexpected ttl %v", ttl)

	ok, err = tpl.Keys().Persist(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tpl.Values().Set(ctx, "test:ttl-set", "v", time.Minute))
	ttl, err = tpl.Keys().TTL(ctx, "test:ttl-set")
	require.NoError(t, err)
	assert.True(t, ttl > 0, "unexpected ttl %v", ttl)
}

func testClear(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	for _, key := range []string{"test:clear:a", "test:clear:b", "test:keep"} {
		require.NoError(t, tpl.Values().Set(ctx, key, "1"))
	}

	keys, err := tpl.Keys().Scan(ctx, "test:clear:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"test:clear:a", "test:clear:b"}, keys)

	deleted, err := tpl.Keys().Clear(ctx, "test:clear:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := tpl.Keys().Exists(ctx, "test:clear:a", "test:clear:b", "test:keep")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func testTx(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:transactional"

	results, err := tpl.Tx(ctx, func(ops kv.Ops) error {
		for _, name := range []string{"Kim", "Bob", "Jack"} {
			if _, err := ops.Sets().Add(ctx, key, name); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "sadd", r.Command)
		assert.Equal(t, int64(1), r.Value)
		assert.NoError(t, r.Err)
	}

	card, err := tpl.Sets().Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)

	// A missing key inside the batch fails only its own reply
	results, err = tpl.Tx(ctx, func(ops kv.Ops) error {
		_, _ = ops.Values().Get(ctx, "test:tx-missing")
		_, err := ops.Values().Incr(ctx, "test:tx-counter")
		return err
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, kv.ErrNotFound)
	assert.Equal(t, int64(1), results[1].Value)
}

func testTxCallbackError(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:tx-aborted"
	boom := errors.New("boom")

	_, err := tpl.Tx(ctx, func(ops kv.Ops) error {
		if _, err := ops.Sets().Add(ctx, key, "Kim"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := tpl.Keys().Exists(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func testPipeline(t *testing.T, tpl kv.Template) {
	ctx := context.Background()

	results, err := tpl.Pipeline(ctx, func(ops kv.Ops) error {
		if err := ops.Values().Set(ctx, "test:p1", "a"); err != nil {
			return err
		}
		_, err := ops.Lists().RightPush(ctx, "test:p2", 1, 2, 3)
		return err
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "OK", results[0].Value)
	assert.Equal(t, int64(3), results[1].Value)

	_, err = tpl.Pipeline(ctx, func(ops kv.Ops) error {
		_, err := ops.Keys().Scan(ctx, "test:*")
		return err
	})
	assert.Error(t, err)
}

func testWatchConflict(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	key := "test:watched"
	require.NoError(t, tpl.Values().Set(ctx, key, 10))

	// Uncontended: read, then write through EXEC
	err := tpl.Watch(ctx, func(tx kv.Txn) error {
		n, err := tx.Values().GetInt64(ctx, key)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, func(ops kv.Ops) error {
			return ops.Values().Set(ctx, key, n*2)
		})
		return err
	}, key)
	require.NoError(t, err)

	n, err := tpl.Values().GetInt64(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)

	// Contended: another client writes the watched key before EXEC
	err = tpl.Watch(ctx, func(tx kv.Txn) error {
		if err := tpl.Values().Set(ctx, key, 99); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, func(ops kv.Ops) error {
			return ops.Values().Set(ctx, key, 0)
		})
		return err
	}, key)
	assert.ErrorIs(t, err, kv.ErrTxConflict)

	n, err = tpl.Values().GetInt64(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(99), n)
}

func testPublishSubscribe(t *testing.T, tpl kv.Template) {
	ctx := context.Background()
	channel := "test:channel"

	sub, err := tpl.PubSub().Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	receivers, err := tpl.PubSub().Publish(ctx, channel, map[string]string{"event": "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), receivers)

	select {
	case msg := <-sub.Channel():
		require.NotNil(t, msg)
		assert.Equal(t, channel, msg.Channel)
		assert.JSONEq(t, `{"event":"hello"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, sub.Close())
	// Closing twice is harmless
	assert.NoError(t, sub.Close())
}

func testPing(t *testing.T, tpl kv.Template) {
	require.NoError(t, tpl.Ping(context.Background()))
}
