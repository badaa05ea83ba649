package repository

import (
	"context"

	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.UsageRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *repo) MostAccessedObjectWithToken(ctx context.Context, db *gorm.DB, objectType string, limit int) ([]domain.ObjectCount, error) {
	var rows []domain.ObjectCount
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Select("object_id, COUNT(*) AS total").
		Where("object_type = ? AND token_name IS NOT NULL AND object_id IS NOT NULL", objectType).
		Group("object_id").
		Order("total DESC").
		Order("object_id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MostAccessedToken(ctx context.Context, db *gorm.DB, limit int) ([]domain.TokenCount, error) {
	var rows []domain.TokenCount
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Select("user_id, token_name, COUNT(*) AS total").
		Where("token_name IS NOT NULL").
		Group("user_id, token_name").
		Order("total DESC").
		Order("token_name").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) AllUsage(ctx context.Context, db *gorm.DB, limit int) ([]domain.UsageRecord, error) {
	var rows []domain.UsageRecord
	err := db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ActiveUsersPerDay counts distinct users with a login event per calendar day.
// Login events carry the user in object_id. The day is cast to text so every
// dialect scans it as YYYY-MM-DD.
func (r *repo) ActiveUsersPerDay(ctx context.Context, db *gorm.DB, limit int) ([]domain.DailyActiveUsers, error) {
	var rows []domain.DailyActiveUsers
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Select("CAST(DATE(timestamp) AS CHAR(10)) AS day, COUNT(DISTINCT object_id) AS total").
		Where("tracking_sub_type = ?", domain.SubTypeLogin).
		Group("DATE(timestamp)").
		Order("day DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
