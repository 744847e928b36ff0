// Package scheduler runs a small fixed set of periodic jobs on independent
// cadences.
//
// Each job owns its own ticker goroutine, so a long-running traffic sweep
// never delays the vehicle sweep's next start. A tick that arrives while the
// same job is still running is skipped and logged, never queued: cadences
// mark "start no more often than", not a work queue.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
)

// Job is one periodic task. Run receives a context cancelled on shutdown;
// implementations should stop issuing new work promptly and flush partial
// results before returning.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler drives registered jobs until its context is cancelled.
type Scheduler struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	jobs    []Job
}

// New creates an empty scheduler. Pass clockwork.NewRealClock outside tests.
func New(clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run starts every job (each runs once immediately, then on-cadence) and
// blocks until ctx is cancelled and all in-flight executions have returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(ctx, job)
		}()
	}
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runJob owns one job's cadence loop.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.logger.Info("job scheduled", "job", job.Name, "every", job.Every)

	var running atomic.Bool
	var inflight sync.WaitGroup

	execute := func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Warn("job still running, skipping tick", "job", job.Name)
			s.metrics.JobSkips.WithLabelValues(job.Name).Inc()
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer running.Store(false)

			start := s.clock.Now()
			err := job.Run(ctx)
			elapsed := s.clock.Since(start)

			if err != nil {
				s.logger.Error("job failed", "job", job.Name, "duration", elapsed, "error", err)
				s.metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
				return
			}
			s.logger.Info("job completed", "job", job.Name, "duration", elapsed)
			s.metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
		}()
	}

	// First run happens at startup, then on-cadence.
	execute()

	ticker := s.clock.NewTicker(job.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			return
		case <-ticker.Chan():
			execute()
		}
	}
}
