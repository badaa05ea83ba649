package domain

import "time"

// APIToken maps the host "api_token" table. ID is the JWT "jti" claim.
type APIToken struct {
	ID         string     `gorm:"column:id;primaryKey" json:"id"`
	Name       string     `gorm:"column:name" json:"name"`
	UserID     string     `gorm:"column:user_id;index" json:"user_id"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	LastAccess *time.Time `gorm:"column:last_access" json:"last_access"`
}

// TableName sets the database table name.
func (APIToken) TableName() string { return "api_token" }
