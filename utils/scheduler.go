package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one named unit of periodic work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// StartTicker runs jobs in order every interval until ctx is done. The first
// round starts after one interval so a fresh process does not race migrations.
// Failures are logged and the next round proceeds. The returned channel is
// closed when the loop has exited.
func StartTicker(ctx context.Context, interval time.Duration, jobs ...Job) <-chan struct{} {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RunJobs(ctx, jobs...)
			}
		}
	}()
	return done
}

// RunJobs executes each job once, logging the outcome.
func RunJobs(ctx context.Context, jobs ...Job) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			L().Error("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		L().Debug("scheduled job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
}
