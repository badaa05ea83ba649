package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindDatasetByRef matches on id first, then on name.
func (r *repo) FindDatasetByRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Dataset, error) {
	if ds, err := first[domain.Dataset](ctx, db, "id = ?", ref); ds != nil || err != nil {
		return ds, err
	}
	return first[domain.Dataset](ctx, db, "name = ?", ref)
}

func (r *repo) FindDataset(ctx context.Context, db *gorm.DB, id string) (*domain.Dataset, error) {
	return first[domain.Dataset](ctx, db, "id = ?", id)
}

func (r *repo) FindResource(ctx context.Context, db *gorm.DB, id string) (*domain.Resource, error) {
	return first[domain.Resource](ctx, db, "id = ?", id)
}

func (r *repo) FindOrganizationByRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Group, error) {
	if g, err := first[domain.Group](ctx, db, "id = ? AND is_organization = ?", ref, true); g != nil || err != nil {
		return g, err
	}
	return first[domain.Group](ctx, db, "name = ? AND is_organization = ?", ref, true)
}

func (r *repo) FindGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	return first[domain.Group](ctx, db, "id = ?", id)
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return first[domain.User](ctx, db, "id = ?", id)
}

func (r *repo) FindUserByName(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	return first[domain.User](ctx, db, "name = ?", name)
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
