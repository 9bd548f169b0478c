package music

import (
	"context"
	"sync"
	"time"

	internalredis "github.com/hykim/melobot/internal/redis"
	redislib "github.com/redis/go-redis/v9"
)

const (
	mediaCacheKeyPrefix = "music:media:"
	mediaCacheTTL       = time.Hour
)

// MediaCache remembers the last successful MediaReference per search query,
// so loop replays and repeated requests skip the external search. Backed by
// redis when available, with an in-process fallback otherwise.
type MediaCache struct {
	client *redislib.Client

	mu       sync.RWMutex
	fallback map[string]mediaCacheEntry
}

type mediaCacheEntry struct {
	ref       MediaReference
	expiresAt time.Time
}

func NewMediaCache(client *redislib.Client) *MediaCache {
	return &MediaCache{
		client:   client,
		fallback: make(map[string]mediaCacheEntry),
	}
}

func NewMediaCacheFromDefault() *MediaCache {
	return NewMediaCache(internalredis.Client())
}

func (c *MediaCache) Get(ctx context.Context, query string) (MediaReference, bool) {
	if c == nil {
		return "", false
	}

	if c.client != nil {
		val, err := c.client.Get(ctx, mediaCacheKeyPrefix+query).Result()
		if err == nil && val != "" {
			return MediaReference(val), true
		}
		return "", false
	}

	c.mu.RLock()
	entry, ok := c.fallback[query]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.fallback, query)
		c.mu.Unlock()
		return "", false
	}
	return entry.ref, true
}

func (c *MediaCache) Set(ctx context.Context, query string, ref MediaReference) {
	if c == nil || query == "" || ref == "" {
		return
	}

	if c.client != nil {
		_ = c.client.Set(ctx, mediaCacheKeyPrefix+query, string(ref), mediaCacheTTL).Err()
		return
	}

	c.mu.Lock()
	c.fallback[query] = mediaCacheEntry{
		ref:       ref,
		expiresAt: time.Now().Add(mediaCacheTTL),
	}
	c.mu.Unlock()
}
