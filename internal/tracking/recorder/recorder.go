// Package recorder persists usage records.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/usagetrack/internal/clock"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"github.com/smallbiznis/usagetrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Repo     domain.Repository
	Registry *extension.Registry
	GenID    *snowflake.Node
	Metrics  *metrics.Metrics         `optional:"true"`
	Tracking *metrics.TrackingMetrics `optional:"true"`
}

type Recorder struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	registry *extension.Registry
	genID    *snowflake.Node
	metrics  *metrics.Metrics
	tracking *metrics.TrackingMetrics

	trackLogin     bool
	trackLogout    bool
	trackAnonymous bool
	timeout        time.Duration
	clock          clock.Clock
}

func New(p Params) *Recorder {
	return &Recorder{
		db:             p.DB,
		log:            p.Log.Named("tracking.recorder"),
		repo:           p.Repo,
		registry:       p.Registry,
		genID:          p.GenID,
		metrics:        p.Metrics,
		tracking:       p.Tracking,
		trackLogin:     p.Config.Tracking.TrackLogin,
		trackLogout:    p.Config.Tracking.TrackLogout,
		trackAnonymous: p.Config.Tracking.TrackAnonymous,
		timeout:        p.Config.Tracking.RecordTimeout,
		clock:          clock.System(),
	}
}

func (r *Recorder) TrackAnonymous() bool { return r.trackAnonymous }

// Record stores one usage record for p. Disabled login/logout events return
// ErrEventDisabled and nothing is written. AfterSave hook failures are logged
// and never undo the insert.
func (r *Recorder) Record(ctx context.Context, actor domain.Actor, p domain.Payload) (*domain.UsageRecord, error) {
	method, hasMethod := p.Extras[domain.ExtraMethod]
	if r.registry != nil {
		p = r.registry.BeforeSave(ctx, p)
	}
	if hasMethod {
		if p.Extras == nil {
			p.Extras = map[string]any{}
		}
		if _, ok := p.Extras[domain.ExtraMethod]; !ok {
			p.Extras[domain.ExtraMethod] = method
		}
	}

	switch p.TrackingSubType {
	case domain.SubTypeLogin:
		if !r.trackLogin {
			return nil, domain.ErrEventDisabled
		}
	case domain.SubTypeLogout:
		if !r.trackLogout {
			return nil, domain.ErrEventDisabled
		}
	}

	if strings.TrimSpace(p.TrackingType) == "" {
		return nil, domain.ErrMissingTrackingType
	}
	if strings.TrimSpace(p.TrackingSubType) == "" {
		return nil, domain.ErrMissingTrackingSubType
	}

	rec := domain.NewUsageRecord(actor, p, p.Extras)
	rec.ID = r.genID.Generate().String()
	rec.Timestamp = r.clock.Now()

	insertCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		insertCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := r.repo.Insert(insertCtx, r.db, rec)
	r.tracking.ObserveRecordDuration(time.Since(start))
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			r.log.Warn("usage record id collision", zap.String("id", rec.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrDuplicateRecord, err)
		}
		return nil, fmt.Errorf("insert usage record: %w", err)
	}
	r.metrics.RecordUsage(ctx, rec.TrackingType, rec.TrackingSubType)

	if r.registry != nil {
		r.registry.AfterSave(ctx, rec)
	}
	return rec, nil
}

var _ domain.Recorder = (*Recorder)(nil)
