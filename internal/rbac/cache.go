package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ourchat/ourchat-server/internal/ids"
)

const (
	CacheTTL          = 300 * time.Second
	CachePrefix       = "rbac"
	InvalidateChannel = "ourchat.rbac.invalidate"
)

func cacheKey(userID ids.UserId, sessionID ids.SessionId) string {
	return CachePrefix + ":" + userID.String() + ":" + sessionID.String()
}

// Cache caches computed session permission values, keyed by (user, session).
type Cache interface {
	Get(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (SessionPermission, bool, error)
	Set(ctx context.Context, userID ids.UserId, sessionID ids.SessionId, perm SessionPermission) error
	DeleteByUser(ctx context.Context, userID ids.UserId) error
	DeleteBySession(ctx context.Context, sessionID ids.SessionId) error
}

// ValkeyCache implements Cache using Valkey/Redis.
type ValkeyCache struct {
	client *redis.Client
}

func NewValkeyCache(client *redis.Client) *ValkeyCache {
	return &ValkeyCache{client: client}
}

func (c *ValkeyCache) Get(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (SessionPermission, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(userID, sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached permission: %w", err)
	}
	return SessionPermission(n), true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, userID ids.UserId, sessionID ids.SessionId, perm SessionPermission) error {
	if err := c.client.Set(ctx, cacheKey(userID, sessionID), strconv.FormatInt(int64(perm), 10), CacheTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *ValkeyCache) DeleteByUser(ctx context.Context, userID ids.UserId) error {
	return c.scanDelete(ctx, CachePrefix+":"+userID.String()+":*")
}

func (c *ValkeyCache) DeleteBySession(ctx context.Context, sessionID ids.SessionId) error {
	return c.scanDelete(ctx, CachePrefix+":*:"+sessionID.String())
}

func (c *ValkeyCache) scanDelete(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}

// CachedResolver wraps a Resolver with a read-through cache, matching the
// teacher's pattern of keeping the cache as a thin decorator rather than
// baking caching into the resolution algorithm itself.
type CachedResolver struct {
	*Resolver
	cache Cache
}

func NewCachedResolver(resolver *Resolver, cache Cache) *CachedResolver {
	return &CachedResolver{Resolver: resolver, cache: cache}
}

// InvalidateUser drops every cached permission value for a user, e.g.
// after their role assignments change.
func (r *CachedResolver) InvalidateUser(ctx context.Context, userID ids.UserId) error {
	return r.cache.DeleteByUser(ctx, userID)
}

// InvalidateSession drops every cached permission value for a session,
// e.g. after its membership changes.
func (r *CachedResolver) InvalidateSession(ctx context.Context, sessionID ids.SessionId) error {
	return r.cache.DeleteBySession(ctx, sessionID)
}

func (r *CachedResolver) Resolve(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (SessionPermission, error) {
	if perm, ok, err := r.cache.Get(ctx, userID, sessionID); err == nil && ok {
		return perm, nil
	}
	perm, err := r.Resolver.Resolve(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}
	_ = r.cache.Set(ctx, userID, sessionID, perm)
	return perm, nil
}

// HasPermission checks whether a user has a specific permission in a
// session, resolving through the cache.
func (r *CachedResolver) HasPermission(ctx context.Context, userID ids.UserId, sessionID ids.SessionId, perm SessionPermission) (bool, error) {
	effective, err := r.Resolve(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}
