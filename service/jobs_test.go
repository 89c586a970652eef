package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestJobRunnerTicksAllJobs(t *testing.T) {
	var first, second atomic.Int64
	runner := NewJobRunner(time.Millisecond, 5*time.Millisecond, zap.NewNop(),
		func(ctx context.Context) { first.Add(1) },
		func(ctx context.Context) { second.Add(1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)

	assert.Eventually(t, func() bool {
		return first.Load() >= 2 && second.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	runner.Wait()

	// No ticks after shutdown.
	settled := first.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, first.Load())
}

func TestJobRunnerStopsDuringInitialDelay(t *testing.T) {
	var runs atomic.Int64
	runner := NewJobRunner(time.Hour, time.Hour, zap.NewNop(),
		func(ctx context.Context) { runs.Add(1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	cancel()
	runner.Wait()
	assert.Zero(t, runs.Load())
}
