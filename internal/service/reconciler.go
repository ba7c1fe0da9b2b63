package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"postflow/internal/metrics"
	"postflow/internal/repository"
	"postflow/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock held by another instance")

// PassLocker serializes reconciliation passes. Acquire returns ErrLockHeld
// without blocking when someone else holds the lock.
type PassLocker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// EtcdLocker is a PassLocker shared by every replica pointing at the same
// etcd cluster.
type EtcdLocker struct {
	client *clientv3.Client
	key    string
	ttl    int
}

func NewEtcdLocker(client *clientv3.Client, key string) *EtcdLocker {
	return &EtcdLocker{client: client, key: key, ttl: 10}
}

func (l *EtcdLocker) Acquire(ctx context.Context) (func(), error) {
	// session is tied to a lease, so a crashed holder frees the lock after ttl
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl), concurrency.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.TryLock(ctx); err != nil {
		session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, ErrLockHeld
		}
		return nil, err
	}
	return func() {
		if err := mutex.Unlock(context.Background()); err != nil {
			logger.Warn("failed to release reconciliation lock", zap.Error(err))
		}
		session.Close()
	}, nil
}

// LocalLocker only serializes passes inside one process.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) Acquire(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLockHeld
	}
	return l.mu.Unlock, nil
}

type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// Reconciler finishes jobs that a crashed or stalled pass left in publishing.
type Reconciler struct {
	jobs     repository.JobInterface
	executor *Executor
	locker   PassLocker
	observer metrics.PublishObserver
	cfg      ReconcilerConfig
	now      func() time.Time
}

func NewReconciler(jobs repository.JobInterface, executor *Executor, locker PassLocker, observer metrics.PublishObserver, cfg ReconcilerConfig) *Reconciler {
	if locker == nil {
		locker = &LocalLocker{}
	}
	if observer == nil {
		observer = metrics.NopObserver{}
	}
	return &Reconciler{
		jobs:     jobs,
		executor: executor,
		locker:   locker,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	logger.Info("reconciler started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("stale_after", r.cfg.StaleAfter))

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				logger.Error("reconciliation failed", zap.Error(err))
			}
		}
	}
}

// RunOnce takes over stale jobs under the pass lock and returns how many it
// resumed. A held lock is not an error.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	release, err := r.locker.Acquire(lockCtx)
	cancel()
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			logger.Debug("reconciliation skipped, another instance holds the lock")
			return 0, nil
		}
		return 0, err
	}
	defer release()

	now := r.now()
	stale, err := r.jobs.ListStale(ctx, now.Add(-r.cfg.StaleAfter), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for i := range stale {
		if ctx.Err() != nil {
			// shutting down; the rest waits for the next owner
			break
		}
		job := &stale[i]
		ok, err := r.jobs.Touch(ctx, job, now)
		if err != nil {
			logger.Error("recon: take over failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if !ok {
			// touched since we listed it, someone else is on it
			continue
		}
		logger.Warn("recon: resuming stale job",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Time("stale_since", job.UpdatedAt))

		status, err := r.executor.Resume(ctx, job)
		if err != nil {
			logger.Error("recon: resume failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		resumed++
		logger.Info("recon: job resumed", zap.String("job_id", job.ID), zap.String("status", status))
	}

	r.observer.RecordReconciled(resumed)
	if len(stale) > 0 {
		logger.Info("reconciliation finished", zap.Int("stale", len(stale)), zap.Int("resumed", resumed))
	}
	return resumed, nil
}
