package model

import (
	"time"

	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
)

// PublicationAttempt is one platform outcome for one execution of a job.
// Rows are insert-only; (job_id, platform, attempt_no) is unique.
type PublicationAttempt struct {
	ID             int64             `json:"id" gorm:"primaryKey"`
	JobID          string            `json:"job_id" gorm:"size:40;not null;uniqueIndex:uk_attempt,priority:1"`
	Platform       string            `json:"platform" gorm:"size:32;not null;uniqueIndex:uk_attempt,priority:2"`
	AttemptNo      int               `json:"attempt_no" gorm:"not null;uniqueIndex:uk_attempt,priority:3"`
	Success        bool              `json:"success"`
	ExternalPostID string            `json:"external_post_id" gorm:"size:128"`
	ErrorCode      string            `json:"error_code" gorm:"size:64"`
	ErrorMessage   string            `json:"error_message" gorm:"type:text"`
	Classification v1.Classification `json:"classification" gorm:"size:16"`
	Metrics        map[string]any    `json:"metrics" gorm:"type:text;serializer:json"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (PublicationAttempt) TableName() string { return "publication_attempts" }

func (a *PublicationAttempt) ToAPI() v1.Attempt {
	return v1.Attempt{
		Platform:       a.Platform,
		AttemptNumber:  a.AttemptNo,
		Success:        a.Success,
		ExternalPostID: a.ExternalPostID,
		ErrorCode:      a.ErrorCode,
		Error:          a.ErrorMessage,
		Classification: a.Classification,
		Metrics:        a.Metrics,
		CreatedAt:      a.CreatedAt,
	}
}

// Aggregate decides the job status from the attempts of one attempt number.
// It returns publishing while any platform has no outcome yet, published when
// every platform succeeded, and failed otherwise. Attempts for platforms the
// job does not target are ignored.
func Aggregate(platforms []string, attempts []PublicationAttempt) string {
	byPlatform := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		byPlatform[a.Platform] = a.Success
	}

	failed := false
	for _, p := range platforms {
		ok, seen := byPlatform[p]
		if !seen {
			return constraints.StatusPublishing
		}
		if !ok {
			failed = true
		}
	}
	if failed {
		return constraints.StatusFailed
	}
	return constraints.StatusPublished
}
