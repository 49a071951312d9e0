package models

import (
	"time"

	"gorm.io/gorm"
)

// CreatorModel is a managed creator profile. Name is the URL slug used by
// /api/models/:name routes and by forum posts' model tag.
type CreatorModel struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string         `gorm:"size:120;not null" json:"display_name"`
	Bio         string         `gorm:"type:text" json:"bio,omitempty"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"`
	Active      bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// SheetLink points at a spreadsheet generated for a creator model.
type SheetLink struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatorModelID uint      `gorm:"not null;index" json:"model_id"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	SpreadsheetID  string    `gorm:"size:128;not null" json:"spreadsheet_id"`
	SheetURL       string    `gorm:"size:512;not null" json:"sheet_url"`
	FolderURL      string    `gorm:"size:512" json:"folder_url,omitempty"`
	JobID          string    `gorm:"size:64;uniqueIndex" json:"job_id"`
	CreatedByID    uint      `gorm:"not null" json:"created_by_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// BillingAccount holds a user's prepaid balance in cents.
type BillingAccount struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balance_cents"`
	Currency     string    `gorm:"size:3;not null;default:'USD'" json:"currency"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BalanceCheck is the response of POST /api/billing/check-balance.
type BalanceCheck struct {
	Sufficient    bool   `json:"sufficient"`
	BalanceCents  int64  `json:"balance_cents"`
	RequiredCents int64  `json:"required_cents"`
	Currency      string `json:"currency"`
}
