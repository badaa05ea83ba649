// Package domain describes the host catalog tables the tracker reads.
package domain

import "time"

const StateActive = "active"

// Dataset maps the host "package" table.
type Dataset struct {
	ID       string `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name;uniqueIndex"`
	Title    string `gorm:"column:title"`
	OwnerOrg string `gorm:"column:owner_org"`
	Type     string `gorm:"column:type"`
	State    string `gorm:"column:state"`
}

func (Dataset) TableName() string { return "package" }

type Resource struct {
	ID        string `gorm:"column:id;primaryKey"`
	PackageID string `gorm:"column:package_id;index"`
	Name      string `gorm:"column:name"`
	URL       string `gorm:"column:url"`
	State     string `gorm:"column:state"`
}

func (Resource) TableName() string { return "resource" }

// Group maps the host "group" table; organizations are groups with
// IsOrganization set.
type Group struct {
	ID             string `gorm:"column:id;primaryKey"`
	Name           string `gorm:"column:name;uniqueIndex"`
	Title          string `gorm:"column:title"`
	IsOrganization bool   `gorm:"column:is_organization"`
	State          string `gorm:"column:state"`
}

func (Group) TableName() string { return "group" }

type User struct {
	ID       string    `gorm:"column:id;primaryKey"`
	Name     string    `gorm:"column:name;uniqueIndex"`
	Fullname string    `gorm:"column:fullname"`
	Email    string    `gorm:"column:email"`
	Sysadmin bool      `gorm:"column:sysadmin"`
	State    string    `gorm:"column:state"`
	Created  time.Time `gorm:"column:created"`
}

func (User) TableName() string { return "user" }

// DisplayName prefers the full name over the login name.
func (u User) DisplayName() string {
	if u.Fullname != "" {
		return u.Fullname
	}
	return u.Name
}
