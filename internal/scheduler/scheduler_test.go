package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
	"github.com/couchcryptid/drive-risk-ingest/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsJobOnceAtStart(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:  "traffic_sweep",
		Every: 15 * time.Minute,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond,
		"job must run once immediately on start")

	cancel()
	<-done
}

func TestScheduler_RunsOnCadence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:  "traffic_sweep",
		Every: 15 * time.Minute,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	completed := func(n float64) func() bool {
		return func() bool {
			return testutil.ToFloat64(metrics.JobRuns.WithLabelValues("traffic_sweep", "ok")) == n
		}
	}
	require.Eventually(t, completed(1), time.Second, time.Millisecond)

	fc.BlockUntil(1) // ticker registered
	fc.Advance(15 * time.Minute)
	require.Eventually(t, completed(2), time.Second, time.Millisecond)

	fc.Advance(15 * time.Minute)
	require.Eventually(t, completed(3), time.Second, time.Millisecond)
	assert.Equal(t, int64(3), runs.Load())
}

func TestScheduler_SkipsTickWhileRunning(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	started := make(chan struct{}, 10)
	release := make(chan struct{})
	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:  "vehicle_sweep",
		Every: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	<-started // initial run is now blocked in-flight

	fc.BlockUntil(1)
	fc.Advance(time.Hour) // tick while running: must skip, not queue

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.JobSkips.WithLabelValues("vehicle_sweep")) == 1
	}, time.Second, time.Millisecond, "overlapping tick must be recorded as a skip")
	assert.Equal(t, int64(1), runs.Load())

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.JobRuns.WithLabelValues("vehicle_sweep", "ok")) == 1
	}, time.Second, time.Millisecond)

	fc.Advance(time.Hour)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond,
		"next tick after completion must run normally")
}

func TestScheduler_JobsRunIndependently(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	blockForever := make(chan struct{})
	defer close(blockForever)
	slowStarted := make(chan struct{})
	s.Add(scheduler.Job{
		Name:  "slow",
		Every: time.Hour,
		Run: func(context.Context) error {
			close(slowStarted)
			<-blockForever
			return nil
		},
	})

	var fastRuns atomic.Int64
	s.Add(scheduler.Job{
		Name:  "fast",
		Every: 15 * time.Minute,
		Run: func(context.Context) error {
			fastRuns.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	<-slowStarted
	require.Eventually(t, func() bool { return fastRuns.Load() == 1 }, time.Second, time.Millisecond)

	fc.BlockUntil(2) // both tickers registered
	fc.Advance(15 * time.Minute)
	require.Eventually(t, func() bool { return fastRuns.Load() == 2 }, time.Second, time.Millisecond,
		"a stuck slow job must not delay the fast job's cadence")
}

func TestScheduler_JobErrorDoesNotStopCadence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:  "model_refresh",
		Every: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("sink unavailable")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	failed := func(n float64) func() bool {
		return func() bool {
			return testutil.ToFloat64(metrics.JobRuns.WithLabelValues("model_refresh", "error")) == n
		}
	}
	require.Eventually(t, failed(1), time.Second, time.Millisecond)

	fc.BlockUntil(1)
	fc.Advance(time.Hour)
	require.Eventually(t, failed(2), time.Second, time.Millisecond,
		"a failed tick must not stop the next one")
	assert.Equal(t, int64(2), runs.Load())
}

func TestScheduler_ShutdownWaitsForInflightRun(t *testing.T) {
	fc := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	s := scheduler.New(fc, testLogger(), metrics)

	started := make(chan struct{})
	finished := make(chan struct{})
	s.Add(scheduler.Job{
		Name:  "traffic_sweep",
		Every: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done() // flush partial results, then return
			close(finished)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	select {
	case <-finished:
	default:
		t.Fatal("scheduler returned before the in-flight job finished")
	}
}
