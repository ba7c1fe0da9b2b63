package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postflow/internal/platform"
	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
)

func TestReconciler_ResumesStaleJobs(t *testing.T) {
	h := newHarness(t, ExecutorConfig{})
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	stale := h.schedule(t, old.Add(-time.Minute), "twitter", "linkedin")
	if _, err := h.jobs.ClaimDue(ctx, old, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// a fresh publishing job must be left alone
	fresh := h.schedule(t, time.Now().Add(-time.Minute), "twitter")
	if _, err := h.jobs.ClaimDue(ctx, time.Now(), 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	r := NewReconciler(h.jobs, h.exec, nil, nil, ReconcilerConfig{
		Interval:   time.Minute,
		StaleAfter: 10 * time.Minute,
		BatchSize:  10,
	})
	resumed, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed job, got %d", resumed)
	}
	if s := h.status(t, stale); s != constraints.StatusPublished {
		t.Errorf("stale job: expected published, got %s", s)
	}
	if s := h.status(t, fresh); s != constraints.StatusPublishing {
		t.Errorf("fresh job must not be touched, got %s", s)
	}

	// nothing left to do
	resumed, _ = r.RunOnce(ctx)
	if resumed != 0 {
		t.Errorf("second round resumed %d jobs", resumed)
	}
}

func TestReconciler_LeavesRunningJobsAlone(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Heartbeat: 20 * time.Millisecond})
	started := make(chan struct{})
	var once sync.Once
	h.adapters["twitter"].PublishFn = func(context.Context, string, []v1.MediaRef, string) platform.Result {
		once.Do(func() { close(started) })
		time.Sleep(400 * time.Millisecond)
		return platform.Succeeded("t1", nil)
	}

	now := time.Now()
	id := h.schedule(t, now, "twitter")

	done := make(chan PassReport, 1)
	go func() {
		report, _ := h.exec.RunPass(context.Background(), now)
		done <- report
	}()
	<-started
	time.Sleep(200 * time.Millisecond)

	r := NewReconciler(h.jobs, h.exec, nil, nil, ReconcilerConfig{
		Interval:   time.Minute,
		StaleAfter: 100 * time.Millisecond,
		BatchSize:  10,
	})
	resumed, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resumed != 0 {
		t.Errorf("a job with a live heartbeat was taken over")
	}

	report := <-done
	if report.Published != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if n := h.adapters["twitter"].Calls(); n != 1 {
		t.Errorf("expected one publish call, got %d", n)
	}
	if s := h.status(t, id); s != constraints.StatusPublished {
		t.Errorf("expected published, got %s", s)
	}
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context) (func(), error) { return nil, ErrLockHeld }

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context) (func(), error) { return nil, errors.New("etcd unreachable") }

func TestReconciler_Lock(t *testing.T) {
	h := newHarness(t, ExecutorConfig{})
	cfg := ReconcilerConfig{Interval: time.Minute, StaleAfter: time.Minute, BatchSize: 10}

	n, err := NewReconciler(h.jobs, h.exec, heldLocker{}, nil, cfg).RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Errorf("held lock should skip quietly, got %d (%v)", n, err)
	}

	if _, err := NewReconciler(h.jobs, h.exec, brokenLocker{}, nil, cfg).RunOnce(context.Background()); err == nil {
		t.Error("expected lock error to surface")
	}
}

func TestLocalLocker(t *testing.T) {
	var l LocalLocker
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.Acquire(context.Background()); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}
	release()
	if release, err := l.Acquire(context.Background()); err != nil {
		t.Errorf("acquire after release: %v", err)
	} else {
		release()
	}
}
