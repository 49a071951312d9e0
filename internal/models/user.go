// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an admin or creator account. Username stays nil until the user
// completes username setup; forum writes are gated on it.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    *string        `gorm:"uniqueIndex;size:20" json:"username,omitempty"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`
	Password    string         `gorm:"not null" json:"-"`
	DisplayName string         `gorm:"size:100" json:"display_name"`
	Avatar      string         `json:"avatar,omitempty"`
	IsAdmin     bool           `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasUsername reports whether username setup is complete.
func (u *User) HasUsername() bool {
	return u != nil && u.Username != nil && *u.Username != ""
}

// Handle returns the username or a placeholder for users without one.
func (u *User) Handle() string {
	if u.HasUsername() {
		return *u.Username
	}
	return "(no username)"
}

// UsernameStatus is the response of GET/POST /api/user/username.
type UsernameStatus struct {
	HasUsername bool   `json:"has_username"`
	Username    string `json:"username,omitempty"`
}

// AuthorSummary is the public projection of a User attached to forum content.
type AuthorSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
