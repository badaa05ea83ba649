package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:tracking_repo?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageRecord{}))
	t.Cleanup(func() { _ = db.Migrator().DropTable(&domain.UsageRecord{}) })
	return db
}

func ptr(v string) *string { return &v }

type seed struct {
	at         time.Time
	userID     string
	token      string
	subType    string
	objectType string
	objectID   string
}

func insertAll(t *testing.T, db *gorm.DB, rows []seed) {
	t.Helper()
	r := Provide()
	for i, s := range rows {
		rec := &domain.UsageRecord{
			ID:              fmt.Sprintf("rec-%03d", i),
			Timestamp:       s.at,
			TrackingType:    domain.TrackingTypeAPI,
			TrackingSubType: s.subType,
			Extras:          datatypes.JSONMap{"method": "GET"},
		}
		if s.userID != "" {
			rec.UserID = ptr(s.userID)
		}
		if s.token != "" {
			rec.TokenName = ptr(s.token)
		}
		if s.objectType != "" {
			rec.ObjectType = ptr(s.objectType)
		}
		if s.objectID != "" {
			rec.ObjectID = ptr(s.objectID)
		}
		require.NoError(t, r.Insert(context.Background(), db, rec))
	}
}

func TestAllUsage_RoundTrip(t *testing.T) {
	db := setupDB(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	insertAll(t, db, []seed{
		{at: base, userID: "u1", token: "ci", subType: "show", objectType: "dataset", objectID: "X"},
		{at: base.Add(time.Minute), userID: "u2", subType: "home"},
	})

	rows, err := Provide().AllUsage(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "rec-001", rows[0].ID)
	assert.Nil(t, rows[0].ObjectID)
	assert.Equal(t, "dataset", domain.Deref(rows[1].ObjectType))
	assert.Equal(t, "X", domain.Deref(rows[1].ObjectID))
	assert.Equal(t, "GET", rows[1].Extras["method"])
	assert.True(t, rows[1].Timestamp.Equal(base))
}

func TestMostAccessedObjectWithToken(t *testing.T) {
	db := setupDB(t)
	now := time.Now().UTC()
	insertAll(t, db, []seed{
		{at: now, userID: "u1", token: "ci", subType: "show", objectType: "dataset", objectID: "a"},
		{at: now, userID: "u1", token: "ci", subType: "show", objectType: "dataset", objectID: "b"},
		{at: now, userID: "u2", token: "etl", subType: "show", objectType: "dataset", objectID: "b"},
		{at: now, userID: "u3", subType: "show", objectType: "dataset", objectID: "c"},
		{at: now, userID: "u3", subType: "show", objectType: "dataset", objectID: "c"},
		{at: now, userID: "u1", token: "ci", subType: "show", objectType: "resource", objectID: "r"},
	})

	rows, err := Provide().MostAccessedObjectWithToken(context.Background(), db, domain.ObjectTypeDataset, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.ObjectCount{{ObjectID: "b", Total: 2}, {ObjectID: "a", Total: 1}}, rows)

	rows, err = Provide().MostAccessedObjectWithToken(context.Background(), db, domain.ObjectTypeDataset, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMostAccessedToken(t *testing.T) {
	db := setupDB(t)
	now := time.Now().UTC()
	insertAll(t, db, []seed{
		{at: now, userID: "u1", token: "ci", subType: "show"},
		{at: now, userID: "u1", token: "ci", subType: "show"},
		{at: now, userID: "u2", token: "etl", subType: "show"},
		{at: now, userID: "u3", subType: "show"},
	})

	rows, err := Provide().MostAccessedToken(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenCount{
		{UserID: "u1", TokenName: "ci", Total: 2},
		{UserID: "u2", TokenName: "etl", Total: 1},
	}, rows)
}

func TestActiveUsersPerDay(t *testing.T) {
	db := setupDB(t)
	day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	insertAll(t, db, []seed{
		{at: day1, subType: "login", objectType: "user", objectID: "u1"},
		{at: day1.Add(time.Hour), subType: "login", objectType: "user", objectID: "u1"},
		{at: day1.Add(2 * time.Hour), subType: "login", objectType: "user", objectID: "u2"},
		{at: day2, subType: "login", objectType: "user", objectID: "u1"},
		{at: day2, subType: "show", objectType: "dataset", objectID: "d"},
	})

	rows, err := Provide().ActiveUsersPerDay(context.Background(), db, 30)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyActiveUsers{
		{Day: "2025-03-02", Total: 1},
		{Day: "2025-03-01", Total: 2},
	}, rows)
}
