// Package cache keeps resolved API tokens close to the request path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/clock"
	"github.com/smallbiznis/usagetrack/internal/config"
	"go.uber.org/zap"
)

const keyAPIToken = "usagetrack:api_token:"

// TokenCache stores positive token lookups only.
type TokenCache interface {
	Get(ctx context.Context, id string) (*apikeydomain.APIToken, bool)
	Set(ctx context.Context, token *apikeydomain.APIToken)
}

// New returns a redis cache when REDIS_ADDR is set, otherwise an in-memory one.
func New(cfg config.Config, log *zap.Logger) TokenCache {
	ttl := cfg.APIToken.CacheTTL
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return NewMemory(ttl)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedis(client, ttl, log)
}

type memoryEntry struct {
	token     apikeydomain.APIToken
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clock.Clock
}

func NewMemory(ttl time.Duration) TokenCache {
	return &memoryCache{
		entries: map[string]memoryEntry{},
		ttl:     ttl,
		clock:   clock.System(),
	}
}

func (c *memoryCache) Get(_ context.Context, id string) (*apikeydomain.APIToken, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false
	}
	token := entry.token
	return &token, true
}

func (c *memoryCache) Set(_ context.Context, token *apikeydomain.APIToken) {
	if token == nil || token.ID == "" || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[token.ID] = memoryEntry{token: *token, expiresAt: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) TokenCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisCache{client: client, ttl: ttl, log: log.Named("apikey.cache")}
}

func (c *redisCache) Get(ctx context.Context, id string) (*apikeydomain.APIToken, bool) {
	raw, err := c.client.Get(ctx, keyAPIToken+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("token cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var token apikeydomain.APIToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, false
	}
	return &token, true
}

func (c *redisCache) Set(ctx context.Context, token *apikeydomain.APIToken) {
	if token == nil || token.ID == "" || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyAPIToken+token.ID, raw, c.ttl).Err(); err != nil {
		c.log.Debug("token cache write failed", zap.Error(err))
	}
}
