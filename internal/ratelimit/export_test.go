package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewExportLimiter_DisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{Export: config.ExportConfig{Rate: 1, Burst: 5}}
	l, err := NewExportLimiter(Params{Cfg: cfg, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.False(t, l.Enabled())
}

func TestNewExportLimiter_RejectsBadBurst(t *testing.T) {
	cfg := config.Config{
		Redis:  config.RedisConfig{Addr: "localhost:6379"},
		Export: config.ExportConfig{Rate: 1},
	}
	_, err := NewExportLimiter(Params{Cfg: cfg, Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestExportLimiter_NilAllowsEverything(t *testing.T) {
	var l *ExportLimiter
	ctx := context.Background()

	res, err := l.Allow(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, err := l.Acquire(ctx, "u-1", "all-token-usage")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
}

func TestTokenBucket_RejectsInvalidInput(t *testing.T) {
	var b *TokenBucket
	res, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)
	assert.False(t, res.Allowed)

	b = &TokenBucket{}
	_, err = b.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = b.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(int64(3)))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Equal(t, 4.0, castToFloat(int64(4)))
	assert.Equal(t, 0.0, castToFloat(nil))
}

func TestExportLockKey(t *testing.T) {
	assert.Equal(t, "usagetrack:export:lock:u-1:most-accessed-token", exportLockKey(" u-1 ", "most-accessed-token"))
}

func TestLocker_NilAndInvalid(t *testing.T) {
	var l *Locker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
	assert.Nil(t, NewLocker(nil))
}
