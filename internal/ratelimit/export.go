package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/usagetrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyExportUser = "usagetrack:export:user:%s"
	keyExportLock = "usagetrack:export:lock:%s:%s"
)

// ErrExportBusy is returned when the same user already has the same export running.
var ErrExportBusy = errors.New("export_in_progress")

// ExportLimiter throttles CSV report exports per user. A nil limiter allows everything.
type ExportLimiter struct {
	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger

	rate    float64
	burst   int
	lockTTL time.Duration
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
	Lc  fx.Lifecycle `optional:"true"`
}

func NewExportLimiter(p Params) (*ExportLimiter, error) {
	limitCfg := p.Cfg.Export
	addr := strings.TrimSpace(p.Cfg.Redis.Addr)
	if addr == "" || limitCfg.Rate <= 0 {
		return nil, nil
	}
	if limitCfg.Burst <= 0 {
		return nil, errors.New("export rate limit burst must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: p.Cfg.Redis.Password,
		DB:       p.Cfg.Redis.DB,
	})
	if p.Lc != nil {
		p.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
	}

	lockTTL := limitCfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}

	return &ExportLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		log:     p.Log.Named("ratelimit.export"),
		rate:    limitCfg.Rate,
		burst:   limitCfg.Burst,
		lockTTL: lockTTL,
	}, nil
}

func (l *ExportLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one export token for userID.
func (l *ExportLimiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyExportUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

// Acquire takes the per-user lock for report. The returned release func is always non-nil.
func (l *ExportLimiter) Acquire(ctx context.Context, userID, report string) (func(), error) {
	noop := func() {}
	if !l.Enabled() {
		return noop, nil
	}
	key := exportLockKey(userID, report)
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return noop, err
	}
	if !ok {
		return noop, ErrExportBusy
	}
	return func() {
		if err := l.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn("failed to release export lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func exportLockKey(userID, report string) string {
	return fmt.Sprintf(keyExportLock, strings.TrimSpace(userID), strings.TrimSpace(report))
}
