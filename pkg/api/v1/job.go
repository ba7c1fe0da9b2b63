package v1

import "time"

// MediaRef points at an asset that should be attached to a post.
type MediaRef struct {
	URL  string `json:"url"`
	Type string `json:"type"` // image, video
}

type Classification string

const (
	Transient Classification = "transient"
	Permanent Classification = "permanent"
)

type Attempt struct {
	Platform       string         `json:"platform"`
	AttemptNumber  int            `json:"attemptNumber"`
	Success        bool           `json:"success"`
	ExternalPostID string         `json:"externalPostId,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
	Error          string         `json:"error,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	Metrics        map[string]any `json:"metrics,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type Job struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	UserID         string         `json:"userId"`
	Content        string         `json:"content"`
	Platforms      []string       `json:"platforms"`
	Media          []MediaRef     `json:"media,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ScheduledAt    time.Time      `json:"scheduledAt"`
	Status         string         `json:"status"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"maxAttempts"`
	History        []Attempt      `json:"history,omitempty"`
}
