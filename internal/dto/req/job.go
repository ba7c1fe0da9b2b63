package req

import v1 "postflow/pkg/api/v1"

// CreateJobRequest fields are validated by the scheduler service so every
// rejection carries a field-level message.
type CreateJobRequest struct {
	Content        string         `json:"content"`
	Platforms      []string       `json:"platforms"`
	Media          []v1.MediaRef  `json:"media"`
	PublishAt      string         `json:"publishAt"`
	Timezone       string         `json:"timezone"`
	OrganizationID string         `json:"organizationId"`
	Metadata       map[string]any `json:"metadata"`
}

type CancelJobRequest struct {
	JobID          string `json:"jobId" binding:"required"`
	OrganizationID string `json:"organizationId" binding:"required"`
}

type JobURI struct {
	JobID string `uri:"id" binding:"required"`
}

type GetJobQuery struct {
	OrganizationID string `form:"organizationId" binding:"required"`
}

type SecretPath struct {
	OrganizationID string `uri:"orgId" binding:"required"`
	Platform       string `uri:"platform" binding:"required"`
}

type SetSecretRequest struct {
	Value string `json:"value" binding:"required"`
}
