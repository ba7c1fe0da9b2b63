package model

import "time"

// PlatformSecret holds a platform credential. An empty OrganizationID marks
// the shared secret used as the global fallback.
type PlatformSecret struct {
	ID             uint64 `gorm:"primaryKey"`
	OrganizationID string `gorm:"size:64;not null;default:'';uniqueIndex:uk_secret,priority:1"`
	Platform       string `gorm:"size:32;not null;uniqueIndex:uk_secret,priority:2"`
	Value          string `json:"-" gorm:"type:text;not null"`
	UpdatedBy      string `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (PlatformSecret) TableName() string { return "platform_secrets" }
