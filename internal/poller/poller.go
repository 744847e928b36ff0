// Package poller drives rate-limited sweeps over sets of sampling units.
//
// A sweep walks every unit (grid coordinate, fleet vehicle), invokes one
// upstream call per unit under bounded worker parallelism, and collects
// partial results: one bad unit never loses the rest of the sweep. Inter-call
// spacing is enforced by a token [Gate] shared across all workers of a
// rate-limit domain, so adding workers never increases the upstream call
// rate.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Failure records a unit whose call failed, retaining the unit itself so the
// caller can retry exactly that unit.
type Failure[U any] struct {
	Unit U
	Err  error
}

// Result collects the outcome of one sweep. Succeeded order follows
// completion, not input order; Succeeded and Failed together account for
// every input unit, including units never attempted due to cancellation
// (recorded as failures with the context's error).
type Result[U, R any] struct {
	Succeeded []R
	Failed    []Failure[U]
}

// Options tune one sweep.
type Options struct {
	// Gate enforces minimum inter-call spacing. Share one Gate across all
	// sweeps that hit the same upstream rate-limit domain. Nil means
	// unthrottled.
	Gate *Gate
	// Workers bounds call parallelism. Values below 1 mean serial.
	Workers int
	// BatchSize is the number of calls made before enforcing BatchCooldown.
	// Values below 1 disable batching.
	BatchSize int
	// BatchCooldown is the pause between batches.
	BatchCooldown time.Duration
	// CallTimeout bounds each individual call so a stalled upstream cannot
	// occupy a worker slot indefinitely. Values below 1 mean no timeout.
	CallTimeout time.Duration
}

// Run sweeps every unit through call, honoring the gate, worker bound, and
// batch cooldown. It never returns an error itself: per-unit failures land in
// Result.Failed and cancellation yields a partial Result with the remaining
// units failed on ctx.Err().
func Run[U, R any](ctx context.Context, units []U, call func(context.Context, U) (R, error), opts Options) Result[U, R] {
	res := Result[U, R]{}
	if len(units) == 0 {
		return res
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = len(units)
	}

	for start := 0; start < len(units); start += batchSize {
		end := min(start+batchSize, len(units))
		batch := units[start:end]

		if ctx.Err() != nil {
			res.failRemaining(units[start:], ctx.Err())
			return res
		}
		if start > 0 && !sleepWithContext(ctx, opts.BatchCooldown) {
			res.failRemaining(units[start:], ctx.Err())
			return res
		}

		runBatch(ctx, batch, call, opts, workers, &res)
	}

	return res
}

// runBatch fans the batch out over the worker pool and appends outcomes to res.
func runBatch[U, R any](ctx context.Context, batch []U, call func(context.Context, U) (R, error), opts Options, workers int, res *Result[U, R]) {
	feed := make(chan U)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range min(workers, len(batch)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range feed {
				r, err := callOne(ctx, unit, call, opts)
				mu.Lock()
				if err != nil {
					res.Failed = append(res.Failed, Failure[U]{Unit: unit, Err: err})
				} else {
					res.Succeeded = append(res.Succeeded, r)
				}
				mu.Unlock()
			}
		}()
	}

	// Stop issuing units the moment the context dies; workers drain what
	// they already hold.
	issued := 0
feeding:
	for _, unit := range batch {
		select {
		case feed <- unit:
			issued++
		case <-ctx.Done():
			break feeding
		}
	}
	close(feed)
	wg.Wait()

	if issued < len(batch) {
		res.failRemaining(batch[issued:], ctx.Err())
	}
}

// callOne waits for a gate token, then runs the call under its timeout.
// Panics in the call are contained as unit failures, matching the
// failure-isolation contract.
func callOne[U, R any](ctx context.Context, unit U, call func(context.Context, U) (R, error), opts Options) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("call panicked: %v", p)
		}
	}()

	if opts.Gate != nil {
		if err := opts.Gate.Wait(ctx); err != nil {
			return r, err
		}
	}

	callCtx := ctx
	if opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
		defer cancel()
	}
	return call(callCtx, unit)
}

func (res *Result[U, R]) failRemaining(units []U, cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	for _, unit := range units {
		res.Failed = append(res.Failed, Failure[U]{Unit: unit, Err: cause})
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
