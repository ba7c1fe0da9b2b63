package service

import (
	"context"
	"fmt"
	"time"

	"postflow/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Passer interface {
	RunPass(ctx context.Context, now time.Time) (PassReport, error)
}

// Trigger wakes the executor on a cron schedule. Within one process a pass
// that is still running causes the next tick to be skipped; across
// processes the store's claim guard keeps overlapping passes apart.
type Trigger struct {
	cron     *cron.Cron
	schedule string
}

func NewTrigger(ctx context.Context, schedule string, passer Passer) (*Trigger, error) {
	log := cronLogger{}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	_, err := c.AddFunc(schedule, func() {
		if _, err := passer.RunPass(ctx, time.Now()); err != nil {
			logger.Error("scheduled pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid publisher schedule %q: %w", schedule, err)
	}
	return &Trigger{cron: c, schedule: schedule}, nil
}

func (t *Trigger) Start() {
	logger.Info("publication trigger started", zap.String("schedule", t.schedule))
	t.cron.Start()
}

// Stop prevents new passes and waits for a running one, or for ctx.
func (t *Trigger) Stop(ctx context.Context) {
	done := t.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("publication trigger stop timed out")
	}
}

// cronLogger routes robfig/cron logs through zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
