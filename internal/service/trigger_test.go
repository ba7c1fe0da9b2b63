package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingPasser struct {
	runs atomic.Int32
}

func (c *countingPasser) RunPass(ctx context.Context, now time.Time) (PassReport, error) {
	c.runs.Add(1)
	return PassReport{}, nil
}

func TestTrigger_RunsOnSchedule(t *testing.T) {
	p := &countingPasser{}
	trig, err := NewTrigger(context.Background(), "@every 1s", p)
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	trig.Start()

	deadline := time.Now().Add(5 * time.Second)
	for p.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	trig.Stop(stopCtx)

	if p.runs.Load() == 0 {
		t.Error("trigger never ran a pass")
	}
}

func TestTrigger_InvalidSchedule(t *testing.T) {
	if _, err := NewTrigger(context.Background(), "every tuesday", &countingPasser{}); err == nil {
		t.Error("expected invalid schedule error")
	}
}
