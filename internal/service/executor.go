package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postflow/internal/metrics"
	"postflow/internal/model"
	"postflow/internal/platform"
	"postflow/internal/repository"
	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
	"postflow/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	CodeCredentialUnavailable = "credential_unavailable"
	CodeAdapterPanic          = "adapter_panic"
)

type CredentialResolver interface {
	Resolve(ctx context.Context, organizationID, platform string, opts ResolveOptions) Resolution
}

// ExecutorConfig bounds a pass. Heartbeat is how often a running job's
// updated_at is refreshed; it must stay well below the reconciler's
// stale_after, zero disables it.
type ExecutorConfig struct {
	BatchSize           int
	JobConcurrency      int
	PlatformConcurrency int
	PublishTimeout      time.Duration
	StoreTimeout        time.Duration
	Heartbeat           time.Duration
}

// errOwnershipLost stops a job whose updated_at was moved by someone else,
// i.e. the reconciler took it over.
var errOwnershipLost = errors.New("job was taken over by another worker")

// PassReport summarizes one RunPass. Incomplete jobs were left in
// publishing, for the reconciler to pick up.
type PassReport struct {
	Claimed    int
	Published  int
	Failed     int
	Incomplete int
	Duration   time.Duration
}

// Executor claims due jobs and publishes them. Jobs run in parallel and each
// job fans out over its platforms; one platform's failure never stops its
// siblings.
type Executor struct {
	jobs     repository.JobInterface
	secrets  CredentialResolver
	registry *platform.Registry
	observer metrics.PublishObserver
	cfg      ExecutorConfig
	now      func() time.Time
}

func NewExecutor(jobs repository.JobInterface, secrets CredentialResolver, registry *platform.Registry, observer metrics.PublishObserver, cfg ExecutorConfig) *Executor {
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = 1
	}
	if cfg.PlatformConcurrency <= 0 {
		cfg.PlatformConcurrency = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if observer == nil {
		observer = metrics.NopObserver{}
	}
	return &Executor{
		jobs:     jobs,
		secrets:  secrets,
		registry: registry,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunPass claims the jobs due at now and drives each to a terminal status.
// Cancelling ctx stops new claims but not publications already in flight.
func (e *Executor) RunPass(ctx context.Context, now time.Time) (PassReport, error) {
	start := time.Now()
	var report PassReport

	claimCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	claimed, claimErr := e.jobs.ClaimDue(claimCtx, now, e.cfg.BatchSize)
	cancel()
	if claimErr != nil {
		logger.Error("claim due jobs failed", zap.Int("claimed_before_error", len(claimed)), zap.Error(claimErr))
		claimErr = fmt.Errorf("claim due jobs: %w", claimErr)
	}
	if len(claimed) == 0 {
		return report, claimErr
	}

	report.Claimed = len(claimed)
	e.observer.RecordClaims(len(claimed))
	logger.Info("publication pass started", zap.Int("claimed", len(claimed)))

	work := context.WithoutCancel(ctx)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.JobConcurrency)
	for i := range claimed {
		job := &claimed[i]
		g.Go(func() error {
			status := e.execute(work, job, nil)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case constraints.StatusPublished:
				report.Published++
			case constraints.StatusFailed:
				report.Failed++
			default:
				report.Incomplete++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	e.observer.ObservePassDuration(report.Duration.Seconds())
	logger.Info("publication pass finished",
		zap.Int("claimed", report.Claimed),
		zap.Int("published", report.Published),
		zap.Int("failed", report.Failed),
		zap.Int("incomplete", report.Incomplete),
		zap.Duration("duration", report.Duration),
	)
	return report, claimErr
}

// Resume publishes the platforms of a publishing job that have no attempt
// for its current attempt number yet, then finalizes it.
func (e *Executor) Resume(ctx context.Context, job *model.ScheduledJob) (string, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	attempts, err := e.jobs.ListAttempts(listCtx, job.ID, job.Attempts)
	cancel()
	if err != nil {
		return constraints.StatusPublishing, fmt.Errorf("list attempts of %s: %w", job.ID, err)
	}
	done := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		done[a.Platform] = true
	}
	return e.execute(context.WithoutCancel(ctx), job, done), nil
}

// execute returns the job's status after the pass, publishing if it could
// not be finalized. The job is touched when it starts, after every recorded
// attempt and on each heartbeat, so the reconciler never sees it as stale
// while it runs.
func (e *Executor) execute(ctx context.Context, job *model.ScheduledJob, done map[string]bool) string {
	log := logger.L().With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))

	own := &ownership{jobs: e.jobs, job: job, now: e.now, timeout: e.cfg.StoreTimeout}
	if err := own.touch(ctx); err != nil {
		log.Warn("job not started", zap.Error(err))
		return constraints.StatusPublishing
	}
	stop := e.heartbeat(ctx, own, log)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.PlatformConcurrency)
	seen := make(map[string]bool, len(job.Platforms))
	for _, key := range job.Platforms {
		if done[key] || seen[key] {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			if own.isLost() {
				return errOwnershipLost
			}
			res := e.publishOne(ctx, job, key)
			if !res.Success {
				log.Warn("platform publish failed",
					zap.String("platform", key),
					zap.String("code", res.Code),
					zap.String("classification", string(res.Classification)),
					zap.String("error", res.Error),
				)
			}
			if err := e.record(ctx, job, key, res); err != nil {
				return err
			}
			return own.touch(ctx)
		})
	}
	err := g.Wait()
	stop()
	if errors.Is(err, errOwnershipLost) {
		log.Warn("job taken over, leaving it to the new owner")
		return constraints.StatusPublishing
	}
	if err != nil {
		log.Error("job left in publishing after persistence error", zap.Error(err))
		return constraints.StatusPublishing
	}

	finCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	status, err := e.jobs.Finalize(finCtx, job.ID, e.now())
	cancel()
	if err != nil {
		log.Error("finalize job failed", zap.Error(err))
		return constraints.StatusPublishing
	}
	if constraints.IsTerminal(status) {
		e.observer.RecordJobFinal(status)
		log.Info("job finalized", zap.String("status", status))
	}
	return status
}

// heartbeat touches the job every cfg.Heartbeat until the returned stop
// function is called.
func (e *Executor) heartbeat(ctx context.Context, own *ownership, log *zap.Logger) func() {
	if e.cfg.Heartbeat <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if err := own.touch(ctx); err != nil {
					log.Warn("job heartbeat failed", zap.Error(err))
					if errors.Is(err, errOwnershipLost) {
						return
					}
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

// ownership serializes touches of one job; platform goroutines and the
// heartbeat share the job's updated_at.
type ownership struct {
	mu      sync.Mutex
	jobs    repository.JobInterface
	job     *model.ScheduledJob
	now     func() time.Time
	timeout time.Duration
	lost    bool
}

// touch returns errOwnershipLost once the job was moved by someone else. A
// store error is returned as is and does not give up ownership.
func (o *ownership) touch(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lost {
		return errOwnershipLost
	}
	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ok, err := o.jobs.Touch(tctx, o.job, o.now())
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	if !ok {
		o.lost = true
		return errOwnershipLost
	}
	return nil
}

func (o *ownership) isLost() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lost
}

func (e *Executor) publishOne(ctx context.Context, job *model.ScheduledJob, key string) platform.Result {
	resCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	cred := e.secrets.Resolve(resCtx, job.OrganizationID, key, ResolveOptions{
		AllowGlobalFallback: true,
		AllowEnvFallback:    true,
	})
	cancel()
	if !cred.Success {
		return platform.Failure(CodeCredentialUnavailable, cred.Reason, v1.Permanent)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	defer cancel()
	res := invoke(callCtx, e.registry.Lookup(key), job.Content, job.Media, cred.Value)
	if !res.Success && res.Classification == "" {
		res.Classification = v1.Permanent
	}
	return res
}

// invoke runs the adapter and stops waiting once ctx is done, even if the
// adapter ignores ctx. A panic becomes a failure result.
func invoke(ctx context.Context, adapter platform.Adapter, content string, media []v1.MediaRef, credential string) platform.Result {
	ch := make(chan platform.Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- platform.Failure(CodeAdapterPanic, fmt.Sprintf("%s adapter panicked: %v", adapter.Key(), p), v1.Permanent)
			}
		}()
		ch <- adapter.Publish(ctx, content, media, credential)
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return platform.Failure(platform.CodeTimeout, adapter.Key()+" publish timed out", v1.Transient)
	}
}

func (e *Executor) record(ctx context.Context, job *model.ScheduledJob, key string, res platform.Result) error {
	attempt := &model.PublicationAttempt{
		JobID:          job.ID,
		Platform:       key,
		AttemptNo:      job.Attempts,
		Success:        res.Success,
		ExternalPostID: res.ExternalPostID,
		ErrorCode:      res.Code,
		ErrorMessage:   res.Error,
		Classification: res.Classification,
		Metrics:        res.Metrics,
		CreatedAt:      e.now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	err := e.jobs.AppendAttempt(storeCtx, attempt)
	if errors.Is(err, repository.ErrAttemptExists) {
		logger.Warn("attempt already recorded", zap.String("job_id", job.ID), zap.String("platform", key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record %s attempt: %w", key, err)
	}
	e.observer.RecordAttempt(key, res.Success, string(res.Classification))
	return nil
}
