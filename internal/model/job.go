package model

import (
	"time"

	v1 "postflow/pkg/api/v1"
)

type ScheduledJob struct {
	ID             string         `json:"id" gorm:"primaryKey;size:40"`
	UserID         string         `json:"user_id" gorm:"size:64;index"`
	OrganizationID string         `json:"organization_id" gorm:"size:64;index"`
	Content        string         `json:"content" gorm:"type:text"`
	Platforms      []string       `json:"platforms" gorm:"type:text;serializer:json"`
	Media          []v1.MediaRef  `json:"media" gorm:"type:text;serializer:json"`
	Metadata       map[string]any `json:"metadata" gorm:"type:text;serializer:json"`
	ScheduledAt    time.Time      `json:"scheduled_at" gorm:"index:idx_jobs_due,priority:2"`
	Status         string         `json:"status" gorm:"size:16;index:idx_jobs_due,priority:1"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts    int            `json:"max_attempts" gorm:"not null;default:3"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"index"`
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }

func (j *ScheduledJob) ToAPI() v1.Job {
	return v1.Job{
		ID:             j.ID,
		OrganizationID: j.OrganizationID,
		UserID:         j.UserID,
		Content:        j.Content,
		Platforms:      j.Platforms,
		Media:          j.Media,
		Metadata:       j.Metadata,
		ScheduledAt:    j.ScheduledAt,
		Status:         j.Status,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
	}
}
