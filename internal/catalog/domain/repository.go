package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository lookups return (nil, nil) when no row matches.
type Repository interface {
	FindDatasetByRef(ctx context.Context, db *gorm.DB, ref string) (*Dataset, error)
	FindDataset(ctx context.Context, db *gorm.DB, id string) (*Dataset, error)
	FindResource(ctx context.Context, db *gorm.DB, id string) (*Resource, error)
	FindOrganizationByRef(ctx context.Context, db *gorm.DB, ref string) (*Group, error)
	FindGroup(ctx context.Context, db *gorm.DB, id string) (*Group, error)
	FindUser(ctx context.Context, db *gorm.DB, id string) (*User, error)
	FindUserByName(ctx context.Context, db *gorm.DB, name string) (*User, error)
}
