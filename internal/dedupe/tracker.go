package dedupe

import (
	"context"
	"fmt"
	"sync"

	"graphetl/pkg/util"

	"github.com/go-redis/redis/v8"
)

// Tracker answers "has this build already staged a node with this URI?".
// Correctness does not depend on it, since the staging upsert is idempotent;
// the answer feeds the cross-source overlap statistics in the build report.
type Tracker interface {
	// Seen marks the URI as seen and reports whether it was seen before.
	Seen(ctx context.Context, label, uri string) (bool, error)
	// Reset discards all tracked URIs for the build.
	Reset(ctx context.Context) error
}

// LRUTracker tracks URIs in a capacity-bounded in-memory cache. When the
// cache has evicted an entry the URI reports as unseen again; the staging
// layer still merges correctly, only the statistics drift.
type LRUTracker struct {
	cache *util.LRUCache[string, struct{}]
}

// NewLRUTracker creates an in-memory tracker holding up to capacity URIs.
func NewLRUTracker(capacity int) (*LRUTracker, error) {
	cache, err := util.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUTracker{cache: cache}, nil
}

func (t *LRUTracker) Seen(ctx context.Context, label, uri string) (bool, error) {
	key := label + "\x00" + uri
	if _, ok := t.cache.Get(key); ok {
		return true, nil
	}
	t.cache.Put(key, struct{}{})
	return false, nil
}

func (t *LRUTracker) Reset(ctx context.Context) error {
	t.cache.Purge()
	return nil
}

// RedisTracker tracks URIs in per-label Redis sets, sized for builds whose
// URI universe does not fit in memory. Keys are scoped by run ID and removed
// on Reset. Safe for concurrent use by the staging workers.
type RedisTracker struct {
	client *redis.Client
	runID  string

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRedisTracker creates a Redis-backed tracker for one run.
func NewRedisTracker(client *redis.Client, runID string) *RedisTracker {
	return &RedisTracker{client: client, runID: runID, keys: make(map[string]struct{})}
}

func (t *RedisTracker) key(label string) string {
	return fmt.Sprintf("graphetl:%s:%s", t.runID, label)
}

func (t *RedisTracker) Seen(ctx context.Context, label, uri string) (bool, error) {
	key := t.key(label)
	t.mu.Lock()
	t.keys[key] = struct{}{}
	t.mu.Unlock()
	added, err := t.client.SAdd(ctx, key, uri).Result()
	if err != nil {
		return false, fmt.Errorf("tracking uri in redis: %w", err)
	}
	// SADD returns 0 when the member already existed.
	return added == 0, nil
}

func (t *RedisTracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.keys {
		if err := t.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing redis tracker key %s: %w", key, err)
		}
	}
	t.keys = make(map[string]struct{})
	return nil
}

var (
	_ Tracker = (*LRUTracker)(nil)
	_ Tracker = (*RedisTracker)(nil)
)
