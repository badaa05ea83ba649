package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) ResolveDatasetID(ctx context.Context, ref string) (string, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false, nil
	}
	ds, err := s.repo.FindDatasetByRef(ctx, s.db, ref)
	if err != nil || ds == nil {
		return "", false, err
	}
	return ds.ID, true, nil
}

func (s *Service) ResolveOrganizationID(ctx context.Context, ref string) (string, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false, nil
	}
	org, err := s.repo.FindOrganizationByRef(ctx, s.db, ref)
	if err != nil || org == nil {
		return "", false, err
	}
	return org.ID, true, nil
}

func (s *Service) Dataset(ctx context.Context, id string) (*domain.Dataset, bool, error) {
	return found(s.repo.FindDataset(ctx, s.db, id))
}

func (s *Service) Resource(ctx context.Context, id string) (*domain.Resource, bool, error) {
	return found(s.repo.FindResource(ctx, s.db, id))
}

func (s *Service) Organization(ctx context.Context, id string) (*domain.Group, bool, error) {
	return found(s.repo.FindGroup(ctx, s.db, id))
}

func (s *Service) User(ctx context.Context, id string) (*domain.User, bool, error) {
	return found(s.repo.FindUser(ctx, s.db, id))
}

func (s *Service) UserByName(ctx context.Context, name string) (*domain.User, bool, error) {
	return found(s.repo.FindUserByName(ctx, s.db, strings.TrimSpace(name)))
}

func found[T any](v *T, err error) (*T, bool, error) {
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}
