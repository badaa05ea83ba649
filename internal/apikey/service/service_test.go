package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/usagetrack/internal/apikey/cache"
	"github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/apikey/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:apikey?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.APIToken{}))
	t.Cleanup(func() { _ = db.Migrator().DropTable(&domain.APIToken{}) })
	return db
}

func TestLookup(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&domain.APIToken{ID: "jti-1", Name: "ci-token", UserID: "user-1", CreatedAt: time.Now().UTC()}).Error)

	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	token, err := svc.Lookup(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "ci-token", token.Name)
	assert.Equal(t, "user-1", token.UserID)

	_, err = svc.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Lookup(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidTokenID)
}

func TestLookup_CachedTokenOutlivesDeleteUntilTTL(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&domain.APIToken{ID: "jti-2", Name: "etl", UserID: "user-2"}).Error)

	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide(), Cache: cache.NewMemory(time.Minute)})

	_, err := svc.Lookup(context.Background(), "jti-2")
	require.NoError(t, err)
	require.NoError(t, db.Delete(&domain.APIToken{ID: "jti-2"}).Error)

	token, err := svc.Lookup(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.Equal(t, "etl", token.Name)
}

func TestLookup_WithoutCacheSeesDelete(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&domain.APIToken{ID: "jti-3", Name: "report-bot", UserID: "admin"}).Error)

	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide(), Cache: cache.NewMemory(time.Minute)})

	_, err := svc.Lookup(context.Background(), "jti-3")
	require.NoError(t, err)
	require.NoError(t, db.Delete(&domain.APIToken{ID: "jti-3"}).Error)

	_, err = svc.Lookup(domain.WithoutCache(context.Background()), "jti-3")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	token, err := svc.Lookup(context.Background(), "jti-3")
	require.NoError(t, err)
	assert.Equal(t, "report-bot", token.Name)
}
