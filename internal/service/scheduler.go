package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"postflow/internal/model"
	"postflow/internal/platform"
	"postflow/internal/repository"
	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
	"postflow/pkg/logger"

	"go.uber.org/zap"
)

var ErrForbidden = errors.New("organization access denied")

// ValidationError is a caller mistake; nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type Guard interface {
	VerifyMembership(ctx context.Context, userID, organizationID string) (bool, error)
	VerifyRole(ctx context.Context, userID, organizationID string, allowed ...string) (bool, error)
}

type SecretWriter interface {
	Upsert(ctx context.Context, organizationID, platform, value, updatedBy string) error
}

type CreateJobInput struct {
	Content        string
	Platforms      []string
	Media          []v1.MediaRef
	PublishAt      string
	Timezone       string
	OrganizationID string
	Metadata       map[string]any
}

// SchedulerService is the request-side half of the pipeline: it admits,
// cancels and reads jobs on behalf of an authenticated caller.
type SchedulerService struct {
	jobs        repository.JobInterface
	guard       Guard
	secrets     SecretWriter
	maxAttempts int
	now         func() time.Time
}

func NewSchedulerService(jobs repository.JobInterface, guard Guard, secrets SecretWriter, maxAttempts int) *SchedulerService {
	return &SchedulerService{
		jobs:        jobs,
		guard:       guard,
		secrets:     secrets,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (s *SchedulerService) CreateJob(ctx context.Context, userID string, in CreateJobInput) (*model.ScheduledJob, error) {
	if in.OrganizationID == "" {
		return nil, &ValidationError{Field: "organizationId", Message: "is required"}
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &ValidationError{Field: "content", Message: "is required"}
	}
	platforms, err := normalizePlatforms(in.Platforms)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, &ValidationError{Field: "platforms", Message: "at least one platform is required"}
	}
	for i, m := range in.Media {
		if msg := checkMediaURL(m.URL); msg != "" {
			return nil, &ValidationError{Field: fmt.Sprintf("media[%d].url", i), Message: msg}
		}
	}
	scheduledAt, tz, err := ParsePublishAt(in.PublishAt, in.Timezone)
	if err != nil {
		return nil, &ValidationError{Field: "publishAt", Message: err.Error()}
	}

	ok, err := s.guard.VerifyMembership(ctx, userID, in.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("verify membership: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}

	metadata := make(map[string]any, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["timezone"] = tz

	job := &model.ScheduledJob{
		UserID:         userID,
		OrganizationID: in.OrganizationID,
		Content:        in.Content,
		Platforms:      platforms,
		Media:          in.Media,
		Metadata:       metadata,
		ScheduledAt:    scheduledAt,
		MaxAttempts:    s.maxAttempts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrInvalidJob) {
			return nil, &ValidationError{Field: "job", Message: err.Error()}
		}
		return nil, err
	}

	logger.Info("job scheduled",
		zap.String("job_id", job.ID),
		zap.String("organization_id", job.OrganizationID),
		zap.Strings("platforms", job.Platforms),
		zap.Time("scheduled_at", job.ScheduledAt),
	)
	return job, nil
}

func (s *SchedulerService) CancelJob(ctx context.Context, userID, jobID, organizationID string) error {
	if jobID == "" {
		return &ValidationError{Field: "jobId", Message: "is required"}
	}
	if organizationID == "" {
		return &ValidationError{Field: "organizationId", Message: "is required"}
	}
	ok, err := s.guard.VerifyMembership(ctx, userID, organizationID)
	if err != nil {
		return fmt.Errorf("verify membership: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	if err := s.jobs.Cancel(ctx, jobID, userID, organizationID, s.now()); err != nil {
		return err
	}
	logger.Info("job cancelled", zap.String("job_id", jobID), zap.String("organization_id", organizationID))
	return nil
}

// GetJob returns the job with its full attempt history. Jobs of other
// organizations are reported as not found.
func (s *SchedulerService) GetJob(ctx context.Context, userID, jobID, organizationID string) (*v1.Job, error) {
	ok, err := s.guard.VerifyMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("verify membership: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != organizationID {
		return nil, repository.ErrJobNotFound
	}
	attempts, err := s.jobs.ListAttempts(ctx, jobID, 0)
	if err != nil {
		return nil, err
	}

	out := job.ToAPI()
	out.History = make([]v1.Attempt, 0, len(attempts))
	for i := range attempts {
		out.History = append(out.History, attempts[i].ToAPI())
	}
	return &out, nil
}

// SetOrganizationSecret stores a platform credential; owners and admins only.
func (s *SchedulerService) SetOrganizationSecret(ctx context.Context, userID, organizationID, platform, value string) error {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return &ValidationError{Field: "platform", Message: "is required"}
	}
	if !platformKey.MatchString(platform) {
		return &ValidationError{Field: "platform", Message: "must be 1-32 characters of a-z, 0-9, _ or -"}
	}
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: "value", Message: "is required"}
	}
	ok, err := s.guard.VerifyRole(ctx, userID, organizationID, constraints.RoleOwner, constraints.RoleAdmin)
	if err != nil {
		return fmt.Errorf("verify role: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	if err := s.secrets.Upsert(ctx, organizationID, platform, value, userID); err != nil {
		return err
	}
	logger.Info("organization secret updated",
		zap.String("organization_id", organizationID),
		zap.String("platform", platform),
		zap.String("updated_by", userID),
	)
	return nil
}

// platformKey matches what the attempt and secret tables can store.
var platformKey = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// normalizePlatforms lower-cases keys and drops blanks and duplicates,
// keeping first-seen order.
func normalizePlatforms(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for i, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !platformKey.MatchString(p) {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("platforms[%d]", i),
				Message: "must be 1-32 characters of a-z, 0-9, _ or -",
			}
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// checkMediaURL returns why raw cannot be fetched by the server, or "".
// Hostnames are checked again at dial time; here only literal addresses
// can be judged.
func checkMediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid url"
	}
	if u.Scheme != "https" {
		return "must use https"
	}
	host := u.Hostname()
	if host == "" {
		return "must have a host"
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return "must be a public host"
	}
	if ip := net.ParseIP(host); ip != nil && !platform.IsPublicIP(ip) {
		return "must be a public host"
	}
	return ""
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParsePublishAt accepts an RFC 3339 instant, or a wall-clock time without
// offset that is read in timezone (UTC when empty). It returns the instant in
// UTC and the timezone name that was applied.
func ParsePublishAt(value, timezone string) (time.Time, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, "", errors.New("is required")
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("unknown timezone %q", timezone)
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), timezone, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), timezone, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("cannot parse %q as an ISO 8601 time", value)
}
