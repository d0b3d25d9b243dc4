// Package member resolves group chat session membership. The relational
// store is the source of truth; a KV cache with a short TTL absorbs the
// fan-out read load every node generates when consuming group messages.
package member

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/litchat/relay/internal/kv"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "chat:session:members:"

	// DefaultCacheTTL bounds membership staleness across the cluster.
	DefaultCacheTTL = time.Hour
)

// Source is the authoritative membership lookup.
type Source interface {
	SessionMembers(ctx context.Context, sessionID int64) ([]int64, error)
}

// StaticSource serves a fixed membership map; tests and the demo client use
// it in place of the relational store.
type StaticSource map[int64][]int64

// SessionMembers returns the configured member list.
func (s StaticSource) SessionMembers(_ context.Context, sessionID int64) ([]int64, error) {
	return append([]int64(nil), s[sessionID]...), nil
}

// Cache fronts a Source with the shared KV store.
type Cache struct {
	store kv.Store
	src   Source
	ttl   time.Duration
	log   *zap.Logger
}

// NewCache builds a cache over store and src. A non-positive ttl selects
// DefaultCacheTTL.
func NewCache(store kv.Store, src Source, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: store, src: src, ttl: ttl, log: log}
}

// Members returns the user ids belonging to sessionID, refreshing the cache
// from the source on miss.
func (c *Cache) Members(ctx context.Context, sessionID int64) ([]int64, error) {
	key := cacheKey(sessionID)
	if cached, ok, err := c.store.Get(ctx, key); err != nil {
		// A broken cache degrades to source reads.
		c.log.Warn("membership cache read failed", zap.Int64("session_id", sessionID), zap.Error(err))
	} else if ok {
		var ids []int64
		if err := json.Unmarshal([]byte(cached), &ids); err == nil {
			return ids, nil
		}
		c.log.Warn("discarding corrupt membership cache entry", zap.Int64("session_id", sessionID))
	}

	ids, err := c.src.SessionMembers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of session %d: %w", sessionID, err)
	}

	if data, err := json.Marshal(ids); err == nil {
		if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
			c.log.Warn("membership cache write failed", zap.Int64("session_id", sessionID), zap.Error(err))
		}
	}
	return ids, nil
}

// Invalidate drops the cached member list for sessionID.
func (c *Cache) Invalidate(ctx context.Context, sessionID int64) error {
	return c.store.Del(ctx, cacheKey(sessionID))
}

func cacheKey(sessionID int64) string {
	return cacheKeyPrefix + strconv.FormatInt(sessionID, 10)
}
