package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postflow/internal/model"
	"postflow/pkg/constraints"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobForbidden      = errors.New("job does not belong to caller")
	ErrJobNotCancellable = errors.New("job is not pending")
	ErrInvalidJob        = errors.New("invalid job")
	ErrAttemptExists     = errors.New("attempt already recorded")
)

// JobInterface is the durable store of scheduled jobs and their attempt log.
// Every status change is a conditional update keyed on the previous state.
type JobInterface interface {
	Create(ctx context.Context, job *model.ScheduledJob) error
	Get(ctx context.Context, id string) (*model.ScheduledJob, error)
	Cancel(ctx context.Context, jobID, userID, organizationID string, now time.Time) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledJob, error)
	AppendAttempt(ctx context.Context, attempt *model.PublicationAttempt) error
	ListAttempts(ctx context.Context, jobID string, attemptNo int) ([]model.PublicationAttempt, error)
	Finalize(ctx context.Context, jobID string, now time.Time) (string, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]model.ScheduledJob, error)
	Touch(ctx context.Context, job *model.ScheduledJob, now time.Time) (bool, error)
	PingContext(ctx context.Context) error
}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create validates and inserts a new pending job, assigning its id.
func (r *JobRepository) Create(ctx context.Context, job *model.ScheduledJob) error {
	if len(job.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrInvalidJob)
	}
	if job.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidJob)
	}
	if job.ID == "" {
		job.ID = "job_" + uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = constraints.DefaultMaxAttempts
	}
	job.Status = constraints.StatusPending
	job.Attempts = 0
	job.ScheduledAt = job.ScheduledAt.UTC()

	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) Get(ctx context.Context, id string) (*model.ScheduledJob, error) {
	var job model.ScheduledJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Cancel moves a pending job owned by the caller to cancelled. Nothing is
// written when the job is foreign or no longer pending.
func (r *JobRepository) Cancel(ctx context.Context, jobID, userID, organizationID string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("id = ? AND organization_id = ? AND user_id = ? AND status = ?",
			jobID, organizationID, userID, constraints.StatusPending).
		UpdateColumns(map[string]any{
			"status":     constraints.StatusCancelled,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OrganizationID != organizationID || job.UserID != userID {
		return ErrJobForbidden
	}
	return fmt.Errorf("%w: status is %s", ErrJobNotCancellable, job.Status)
}

// ClaimDue transitions due pending jobs to publishing. The update is guarded
// on the status and attempt count that were read, so of two overlapping
// callers exactly one wins each job. Jobs claimed before an error are still
// returned alongside it.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledJob, error) {
	now = storeTime(now)

	var candidates []model.ScheduledJob
	q := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND attempts < max_attempts", constraints.StatusPending, now).
		Order("scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]model.ScheduledJob, 0, len(candidates))
	for _, job := range candidates {
		res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
			Where("id = ? AND status = ? AND attempts = ?", job.ID, constraints.StatusPending, job.Attempts).
			UpdateColumns(map[string]any{
				"status":     constraints.StatusPublishing,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			// someone else got it first, or it was cancelled in between
			continue
		}
		job.Status = constraints.StatusPublishing
		job.Attempts++
		job.UpdatedAt = now
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// AppendAttempt inserts one attempt row. An existing row for the same
// (job, platform, attempt) is left untouched and ErrAttemptExists returned.
func (r *JobRepository) AppendAttempt(ctx context.Context, attempt *model.PublicationAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(attempt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAttemptExists
	}
	return nil
}

// ListAttempts returns the attempt log of a job; attemptNo <= 0 returns every attempt.
func (r *JobRepository) ListAttempts(ctx context.Context, jobID string, attemptNo int) ([]model.PublicationAttempt, error) {
	var attempts []model.PublicationAttempt
	q := r.db.WithContext(ctx).Where("job_id = ?", jobID)
	if attemptNo > 0 {
		q = q.Where("attempt_no = ?", attemptNo)
	}
	err := q.Order("attempt_no ASC, id ASC").Find(&attempts).Error
	return attempts, err
}

// Finalize applies model.Aggregate to the current attempt number and writes
// the terminal status once every platform has an outcome.
func (r *JobRepository) Finalize(ctx context.Context, jobID string, now time.Time) (string, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != constraints.StatusPublishing {
		return job.Status, nil
	}

	attempts, err := r.ListAttempts(ctx, jobID, job.Attempts)
	if err != nil {
		return "", err
	}
	status := model.Aggregate(job.Platforms, attempts)
	if status == constraints.StatusPublishing {
		return status, nil
	}

	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("id = ? AND status = ? AND attempts = ?", jobID, constraints.StatusPublishing, job.Attempts).
		UpdateColumns(map[string]any{
			"status":     status,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.Get(ctx, jobID)
		if err != nil {
			return "", err
		}
		return current.Status, nil
	}
	return status, nil
}

// ListStale returns publishing jobs that have not been touched since before.
func (r *JobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]model.ScheduledJob, error) {
	var jobs []model.ScheduledJob
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", constraints.StatusPublishing, before.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// Touch moves a publishing job's updated_at forward, succeeding only if
// nobody else touched it since job was read. It is the ownership check of
// both the executor heartbeat and the reconciler takeover.
func (r *JobRepository) Touch(ctx context.Context, job *model.ScheduledJob, now time.Time) (bool, error) {
	now = storeTime(now)
	if prev := job.UpdatedAt.UTC(); !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("id = ? AND status = ? AND attempts = ? AND updated_at = ?",
			job.ID, constraints.StatusPublishing, job.Attempts, job.UpdatedAt.UTC()).
		UpdateColumns(map[string]any{"updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	job.UpdatedAt = now
	return true, nil
}

// storeTime truncates to the millisecond precision of DATETIME(3), so a
// timestamp read back compares equal to the one that was written.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (r *JobRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
