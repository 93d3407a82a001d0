package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attaboy/racegame/internal/infra"
)

// AsyncRunner runs follow-up work after a response has been produced. Jobs
// get a context detached from the request with their own deadline. When all
// slots are busy the job is dropped and counted.
type AsyncRunner struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewAsyncRunner creates a runner with at most limit concurrent jobs.
func NewAsyncRunner(limit int, timeout time.Duration, metrics *infra.Metrics, logger *slog.Logger) *AsyncRunner {
	if limit <= 0 {
		limit = 1
	}
	return &AsyncRunner{
		sem:     make(chan struct{}, limit),
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Go schedules fn and reports whether it was accepted.
func (a *AsyncRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	select {
	case a.sem <- struct{}{}:
	default:
		a.metrics.ObserveBestEffortFailure(name)
		a.logger.Warn("async job dropped", "job", name)
		return false
	}

	jobCtx := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() { <-a.sem }()
		defer func() {
			if rec := recover(); rec != nil {
				a.metrics.ObserveBestEffortFailure(name)
				a.logger.Error("async job panicked", "job", name, "error", rec)
			}
		}()

		runCtx, cancel := context.WithTimeout(jobCtx, a.timeout)
		defer cancel()
		if err := fn(runCtx); err != nil {
			a.metrics.ObserveBestEffortFailure(name)
			a.logger.Warn("async job failed", "job", name, "error", err)
		}
	}()
	return true
}

// Wait blocks until every accepted job has finished.
func (a *AsyncRunner) Wait() {
	a.wg.Wait()
}
