package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of time-based maintenance. Jobs must be idempotent: running
// a sweep twice in the same state changes nothing.
type Job func(ctx context.Context)

// JobRunner drives periodic maintenance off a single ticker: the in-flight
// retry sweep and the waiting-state expiry check. It is not a general task
// scheduler.
type JobRunner struct {
	initialDelay time.Duration
	interval     time.Duration
	jobs         []Job
	log          *zap.Logger
	wg           sync.WaitGroup
}

func NewJobRunner(initialDelay, interval time.Duration, log *zap.Logger, jobs ...Job) *JobRunner {
	return &JobRunner{
		initialDelay: initialDelay,
		interval:     interval,
		jobs:         jobs,
		log:          log,
	}
}

// Start runs the tick loop until the context is cancelled.
func (r *JobRunner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.initialDelay):
		}

		r.tick(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *JobRunner) tick(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}
}

// Wait blocks until the tick loop has stopped.
func (r *JobRunner) Wait() {
	r.wg.Wait()
}
