package cache

import (
	"context"
	"time"
)

// Member is one sorted-set entry.
type Member struct {
	Score  float64
	Member string
}

// Store is the key-value capability the market pipeline is written against.
// Misses are reported through the found flag, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value. A zero ttl stores the key without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Scan returns every key matching a glob pattern.
	Scan(ctx context.Context, match string) ([]string, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)
	// HScan returns the fields of key matching a glob pattern.
	HScan(ctx context.Context, key, match string) (map[string]string, error)
	// ReplaceHash atomically swaps the whole hash for values. An empty map deletes the key.
	ReplaceHash(ctx context.Context, key string, values map[string]string) error

	ZAdd(ctx context.Context, key string, members ...Member) error
	// ZAddNX adds members that are not present yet and leaves existing scores alone.
	ZAddNX(ctx context.Context, key string, members ...Member) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]Member, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)

	// Publish is best effort; failures are logged by the implementation.
	Publish(ctx context.Context, channel, message string)
	Ping(ctx context.Context) error
	Close() error
}
