package model

import "time"

// OrganizationMembership is owned by the membership subsystem; this service only reads it.
type OrganizationMembership struct {
	ID             uint64    `gorm:"primaryKey"`
	OrganizationID string    `gorm:"size:64;not null;uniqueIndex:uk_member,priority:1"`
	UserID         string    `gorm:"size:64;not null;uniqueIndex:uk_member,priority:2"`
	Role           string    `gorm:"size:16;not null;default:member"`
	Status         string    `gorm:"size:16;not null;default:invited"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (OrganizationMembership) TableName() string { return "organization_memberships" }
