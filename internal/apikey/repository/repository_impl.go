package repository

import (
	"context"

	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*apikeydomain.APIToken, error) {
	var token apikeydomain.APIToken
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, user_id, created_at, last_access
		 FROM api_token WHERE id = ?`,
		id,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == "" {
		return nil, nil
	}
	return &token, nil
}
