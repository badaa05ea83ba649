package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/usagetrack/internal/apikey/cache"
	"github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Cache   cache.TokenCache `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	cache   cache.TokenCache
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("apikey.service"),
		repo:    p.Repo,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

func (s *Service) Lookup(ctx context.Context, id string) (*domain.APIToken, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidTokenID
	}

	useCache := s.cache != nil && domain.CacheAllowed(ctx)
	if useCache {
		if token, ok := s.cache.Get(ctx, id); ok {
			s.metrics.RecordTokenLookup(ctx, "cache", "hit")
			return token, nil
		}
	}

	token, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		s.metrics.RecordTokenLookup(ctx, "db", "error")
		return nil, err
	}
	if token == nil {
		s.metrics.RecordTokenLookup(ctx, "db", "miss")
		return nil, domain.ErrNotFound
	}
	s.metrics.RecordTokenLookup(ctx, "db", "hit")

	if useCache {
		s.cache.Set(ctx, token)
	}
	return token, nil
}
