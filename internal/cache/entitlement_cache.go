package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	entitlementdomain "github.com/smallbiznis/sitecraft/internal/entitlement/domain"
	"go.uber.org/zap"
)

const keyEntitlement = "entitlement:active:"

// NewEntitlementCache uses Redis when a client is configured so every
// instance sees the same invalidations, and falls back to process memory.
func NewEntitlementCache(client *redis.Client, log *zap.Logger) entitlementdomain.Cache {
	if client == nil {
		return NewMemoryEntitlementCache()
	}
	return &redisEntitlementCache{client: client, log: log.Named("cache.entitlement")}
}

type redisEntitlementCache struct {
	client *redis.Client
	log    *zap.Logger
}

func (c *redisEntitlementCache) Get(ctx context.Context, userID string) (*entitlementdomain.Entitlement, bool) {
	raw, err := c.client.Get(ctx, entitlementKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("entitlement cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return decodeEntitlement(raw)
}

func (c *redisEntitlementCache) Set(ctx context.Context, userID string, entitlement entitlementdomain.Entitlement, ttl time.Duration) {
	if !entitlement.Active || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(entitlement)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, entitlementKey(userID), raw, ttl).Err(); err != nil {
		c.log.Warn("entitlement cache write failed", zap.Error(err))
	}
}

func (c *redisEntitlementCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, entitlementKey(userID)).Err(); err != nil {
		c.log.Warn("entitlement cache invalidate failed", zap.Error(err))
	}
}

type memoryEntitlementCache struct {
	entries Cache[string, entitlementdomain.Entitlement]
}

func NewMemoryEntitlementCache() entitlementdomain.Cache {
	return &memoryEntitlementCache{entries: NewTTLCache[string, entitlementdomain.Entitlement]()}
}

func (c *memoryEntitlementCache) Get(ctx context.Context, userID string) (*entitlementdomain.Entitlement, bool) {
	entitlement, ok := c.entries.Get(entitlementKey(userID))
	if !ok {
		return nil, false
	}
	return &entitlement, true
}

func (c *memoryEntitlementCache) Set(ctx context.Context, userID string, entitlement entitlementdomain.Entitlement, ttl time.Duration) {
	if !entitlement.Active {
		return
	}
	c.entries.Set(entitlementKey(userID), entitlement, ttl)
}

func (c *memoryEntitlementCache) Invalidate(ctx context.Context, userID string) {
	c.entries.Delete(entitlementKey(userID))
}

func entitlementKey(userID string) string {
	return keyEntitlement + strings.TrimSpace(userID)
}

func decodeEntitlement(raw []byte) (*entitlementdomain.Entitlement, bool) {
	var entitlement entitlementdomain.Entitlement
	if err := json.Unmarshal(raw, &entitlement); err != nil {
		return nil, false
	}
	if !entitlement.Active {
		return nil, false
	}
	return &entitlement, true
}
