// Package domain contains the request usage tracking model and contracts.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TrackingTypeUI  = "ui"
	TrackingTypeAPI = "api"
)

const (
	SubTypeShow     = "show"
	SubTypeEdit     = "edit"
	SubTypeHome     = "home"
	SubTypeDownload = "download"
	SubTypeLogin    = "login"
	SubTypeLogout   = "logout"
	SubTypeSearch   = "search"
)

// ExtraMethod is the extras key holding the request method. Every stored
// record carries it.
const ExtraMethod = "method"

// Classification types the pipeline itself depends on.
const (
	PathTypeAPIAction        = "api_action"
	PathTypeResourceDownload = "resource_download"
)

const (
	ObjectTypeDataset      = "dataset"
	ObjectTypeResource     = "resource"
	ObjectTypeOrganization = "organization"
	ObjectTypeUser         = "user"
)

// UsageRecord is one tracked request. Rows are insert-only.
type UsageRecord struct {
	ID              string            `gorm:"column:id;primaryKey;size:64" json:"id"`
	Timestamp       time.Time         `gorm:"column:timestamp;not null;index:ix_tracking_usage_timestamp" json:"timestamp"`
	UserID          *string           `gorm:"column:user_id;size:255" json:"user_id"`
	TrackingType    string            `gorm:"column:tracking_type;size:64;not null" json:"tracking_type"`
	TrackingSubType string            `gorm:"column:tracking_sub_type;size:64;not null;index:ix_tracking_usage_sub_type" json:"tracking_sub_type"`
	TokenName       *string           `gorm:"column:token_name;size:255;index:ix_tracking_usage_token_name" json:"token_name"`
	ObjectType      *string           `gorm:"column:object_type;size:64;index:ix_tracking_usage_object,priority:1" json:"object_type"`
	ObjectID        *string           `gorm:"column:object_id;size:255;index:ix_tracking_usage_object,priority:2" json:"object_id"`
	Extras          datatypes.JSONMap `gorm:"column:extras" json:"extras"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "tracking_usage" }

// Payload is what a tracking handler extracts from a classified request.
// Empty strings mean "not set".
type Payload struct {
	TrackingType    string
	TrackingSubType string
	ObjectType      string
	ObjectID        string
	// UserID is only honoured when no actor was resolved for the request.
	UserID string
	Extras map[string]any
}

type ActorSource string

const (
	ActorSourceToken     ActorSource = "token"
	ActorSourceSession   ActorSource = "session"
	ActorSourceAnonymous ActorSource = "anonymous"
)

// Actor is the user a request is attributed to.
type Actor struct {
	UserID    string
	TokenID   string
	TokenName string
	Source    ActorSource
}

func (a Actor) Resolved() bool { return a.UserID != "" }

// TrackEvent is the pre-extraction view handed to BeforeTrack hooks.
type TrackEvent struct {
	TrackingType string
	URL          *RequestURL
	Actor        Actor
}

type ObjectCount struct {
	ObjectID string `json:"object_id"`
	Total    int64  `json:"total"`
}

type TokenCount struct {
	UserID    string `json:"user_id"`
	TokenName string `json:"token_name"`
	Total     int64  `json:"total"`
}

type DailyActiveUsers struct {
	Day   string `json:"day"`
	Total int64  `json:"total"`
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// NewUsageRecord builds the row for a payload attributed to actor.
func NewUsageRecord(actor Actor, p Payload, extras map[string]any) *UsageRecord {
	userID := actor.UserID
	if userID == "" {
		userID = p.UserID
	}
	return &UsageRecord{
		UserID:          stringPtr(userID),
		TrackingType:    p.TrackingType,
		TrackingSubType: p.TrackingSubType,
		TokenName:       stringPtr(actor.TokenName),
		ObjectType:      stringPtr(p.ObjectType),
		ObjectID:        stringPtr(p.ObjectID),
		Extras:          datatypes.JSONMap(extras),
	}
}

// Deref returns the pointed-to string or "".
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
