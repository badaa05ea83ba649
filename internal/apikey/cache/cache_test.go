package cache

import (
	"context"
	"testing"
	"time"

	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/clock"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemory(time.Minute).(*memoryCache)
	fake := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	c.clock = fake
	ctx := context.Background()

	c.Set(ctx, &apikeydomain.APIToken{ID: "jti-1", Name: "ci", UserID: "u1"})

	got, ok := c.Get(ctx, "jti-1")
	require.True(t, ok)
	assert.Equal(t, "ci", got.Name)

	fake.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "jti-1")
	assert.False(t, ok)
}

func TestMemoryCache_IgnoresEmpty(t *testing.T) {
	c := NewMemory(time.Minute)
	c.Set(context.Background(), nil)
	c.Set(context.Background(), &apikeydomain.APIToken{})

	_, ok := c.Get(context.Background(), "")
	assert.False(t, ok)
}

func TestNew_PicksBackend(t *testing.T) {
	mem := New(config.Config{APIToken: config.APITokenConfig{CacheTTL: time.Minute}}, zap.NewNop())
	assert.IsType(t, &memoryCache{}, mem)

	rc := New(config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:6379"}}, zap.NewNop())
	assert.IsType(t, &redisCache{}, rc)
}
