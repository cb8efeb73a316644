// Package cachetest runs the Redis-backed cache.Store against an in-process
// miniredis server so domain tests exercise real Redis semantics.
package cachetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

// Published is a message seen by Store.Publish.
type Published struct {
	Channel string
	Message string
}

// Store is a cache.Redis wired to its own miniredis instance. Published
// messages are forwarded to the server and also kept for assertions.
type Store struct {
	*cache.Redis
	Server *miniredis.Miniredis

	mu        sync.Mutex
	published []Published
}

var _ cache.Store = (*Store)(nil)

// New starts a server that is torn down with t.
func New(t testing.TB) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Store{
		Redis:  cache.NewRedisFromClient(client, zaptest.NewLogger(t)),
		Server: mr,
	}
}

func (s *Store) Publish(ctx context.Context, channel, message string) {
	s.mu.Lock()
	s.published = append(s.published, Published{Channel: channel, Message: message})
	s.mu.Unlock()
	s.Redis.Publish(ctx, channel, message)
}

// Published returns a copy of every message published so far.
func (s *Store) Published() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Published(nil), s.published...)
}

// TTL is the remaining lifetime of key, zero when it has none.
func (s *Store) TTL(key string) time.Duration {
	return s.Server.TTL(key)
}

// FastForward ages every key by d.
func (s *Store) FastForward(d time.Duration) {
	s.Server.FastForward(d)
}
