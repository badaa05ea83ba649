package domain

import (
	"context"
	"net/http"

	"gorm.io/gorm"
)

// Classifier maps a normalized path to a tracking type.
type Classifier interface {
	Classify(path string) (string, bool)
}

// Extractor turns a classified request into a payload.
type Extractor interface {
	Extract(ctx context.Context, trackingType string, u *RequestURL) (Payload, error)
}

// Resolver determines the actor for a request.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) Actor
}

// Recorder persists one usage record per call.
type Recorder interface {
	Record(ctx context.Context, actor Actor, p Payload) (*UsageRecord, error)
	TrackAnonymous() bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rec *UsageRecord) error
	MostAccessedObjectWithToken(ctx context.Context, db *gorm.DB, objectType string, limit int) ([]ObjectCount, error)
	MostAccessedToken(ctx context.Context, db *gorm.DB, limit int) ([]TokenCount, error)
	AllUsage(ctx context.Context, db *gorm.DB, limit int) ([]UsageRecord, error)
	ActiveUsersPerDay(ctx context.Context, db *gorm.DB, limit int) ([]DailyActiveUsers, error)
}
