package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMiniRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, zaptest.NewLogger(t)), mr
}

// storeContract exercises the behavior every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get miss is not an error", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set get del", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "token-bsv20-ordi", `{"tick":"ORDI"}`, 0))
		v, ok, err := s.Get(ctx, "token-bsv20-ordi")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"tick":"ORDI"}`, v)

		require.NoError(t, s.Del(ctx, "token-bsv20-ordi"))
		_, ok, err = s.Get(ctx, "token-bsv20-ordi")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("scan matches glob", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "token-bsv20-a", "1", 0))
		require.NoError(t, s.Set(ctx, "token-bsv20-b", "1", 0))
		require.NoError(t, s.Set(ctx, "token-bsv21-c", "1", 0))
		keys, err := s.Scan(ctx, "token-bsv20-*")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"token-bsv20-a", "token-bsv20-b"}, keys)
	})

	t.Run("hash operations", func(t *testing.T) {
		require.NoError(t, s.HSet(ctx, "autofill-bsv20", map[string]string{"ordi": "1", "myordi": "2", "pepe": "3"}))
		v, ok, err := s.HGet(ctx, "autofill-bsv20", "pepe")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "3", v)

		matched, err := s.HScan(ctx, "autofill-bsv20", "*ord*")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"ordi": "1", "myordi": "2"}, matched)

		n, err := s.HLen(ctx, "autofill-bsv20")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		require.NoError(t, s.HDel(ctx, "autofill-bsv20", "pepe"))
		all, err := s.HGetAll(ctx, "autofill-bsv20")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("replace hash drops old fields", func(t *testing.T) {
		require.NoError(t, s.HSet(ctx, "listings-bsv20-ordi", map[string]string{"a_0": "A"}))
		require.NoError(t, s.ReplaceHash(ctx, "listings-bsv20-ordi", map[string]string{"b_0": "B"}))
		all, err := s.HGetAll(ctx, "listings-bsv20-ordi")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"b_0": "B"}, all)

		require.NoError(t, s.ReplaceHash(ctx, "listings-bsv20-ordi", nil))
		n, err := s.HLen(ctx, "listings-bsv20-ordi")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("sorted set operations", func(t *testing.T) {
		key := "included-bsv20"
		require.NoError(t, s.ZAddNX(ctx, key, Member{Score: 10, Member: "a"}, Member{Score: 20, Member: "b"}))
		require.NoError(t, s.ZAddNX(ctx, key, Member{Score: 1, Member: "b"}, Member{Score: 30, Member: "c"}))

		got, err := s.ZRange(ctx, key, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, got)

		rev, err := s.ZRevRange(ctx, key, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, rev)

		page, err := s.ZRange(ctx, key, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, page)

		require.NoError(t, s.ZAdd(ctx, key, Member{Score: 5, Member: "c"}))
		byScore, err := s.ZRangeByScore(ctx, key, math.Inf(-1), 10)
		require.NoError(t, err)
		assert.Equal(t, []Member{{Score: 5, Member: "c"}, {Score: 10, Member: "a"}}, byScore)

		require.NoError(t, s.ZRemRangeByScore(ctx, key, math.Inf(-1), 6))
		require.NoError(t, s.ZRem(ctx, key, "a"))
		n, err := s.ZCard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})
}

func TestRedisStore(t *testing.T) {
	s, _ := newMiniRedisStore(t)
	storeContract(t, s)
}

func TestRedisTTL(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "exchangeRate", `{"rate":50}`, 15*time.Minute))
	assert.Equal(t, 15*time.Minute, mr.TTL("exchangeRate"))

	mr.FastForward(16 * time.Minute)
	_, ok, err := s.Get(ctx, "exchangeRate")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPSubscribeReceivesPublish(t *testing.T) {
	s, _ := newMiniRedisStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := s.PSubscribe(ctx, "market:*:updated")
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s.Publish(ctx, "market:bsv21:updated", "hello")

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "market:bsv21:updated", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
