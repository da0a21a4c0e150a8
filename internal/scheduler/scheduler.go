// Package scheduler runs strategy ticks on cron schedules.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled strategy tick.
type Job func(ctx context.Context) error

// Scheduler wraps a seconds-resolution cron runner. Each job keeps its
// own lock: a tick that is still running when the next one fires makes
// the new tick a logged skip, never a concurrent run.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
	}
}

// Add registers a job under a 6-field cron expression.
func (s *Scheduler) Add(schedule, name string, job Job) error {
	var running sync.Mutex
	_, err := s.cron.AddFunc(schedule, func() {
		if !running.TryLock() {
			s.log.Warnw("previous tick still running, skipping", "job", name)
			return
		}
		defer running.Unlock()

		s.log.Debugw("tick", "job", name)
		if err := job(context.Background()); err != nil {
			s.log.Errorw("tick failed", "job", name, "error", err)
		}
	})
	return err
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
