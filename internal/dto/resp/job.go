package resp

import (
	"time"

	v1 "postflow/pkg/api/v1"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type CreateJobResponse struct {
	Success     bool      `json:"success"`
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
}

type CancelJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

type GetJobResponse struct {
	Success bool   `json:"success"`
	Job     v1.Job `json:"job"`
}

// SetSecretResponse never echoes the stored value.
type SetSecretResponse struct {
	Success        bool   `json:"success"`
	OrganizationID string `json:"organizationId"`
	Platform       string `json:"platform"`
}
