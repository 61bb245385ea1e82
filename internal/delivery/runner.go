package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/metrics"
)

// Lock coordinates at-most-one concurrent retry pass across instances.
// Store claims stay race-safe without it; the lock only suppresses
// duplicate work when the trigger and the worker overlap.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type passScheduler interface {
	RunPass(ctx context.Context) (Summary, error)
}

// Runner wraps the scheduler with the pass lock. Both the HTTP trigger and
// the periodic worker run passes through the same Runner.
type Runner struct {
	logg    *logger.Logger
	sched   passScheduler
	lock    Lock
	metrics *metrics.DeliveryMetrics
	now     func() time.Time
}

// NewRunner validates the wiring.
func NewRunner(logg *logger.Logger, sched passScheduler, lock Lock, m *metrics.DeliveryMetrics) (*Runner, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if lock == nil {
		return nil, errors.New("pass lock is required")
	}
	return &Runner{logg: logg, sched: sched, lock: lock, metrics: m, now: time.Now}, nil
}

// Run executes one locked pass. ran is false when another pass holds the
// lock, which callers treat as success with nothing to do.
func (r *Runner) Run(ctx context.Context) (Summary, bool, error) {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		r.metrics.IncPass("failed")
		return Summary{}, false, err
	}
	if !locked {
		r.logg.Info(ctx, "another retry pass is running; skipping")
		r.metrics.IncPass("skipped")
		return Summary{}, false, nil
	}
	defer func() {
		if relErr := r.lock.Release(ctx); relErr != nil {
			r.logg.Error(ctx, "failed to release pass lock", relErr)
		}
	}()

	start := r.now()
	summary, err := r.sched.RunPass(ctx)
	duration := time.Since(start)
	r.metrics.ObservePassDuration(duration)
	if err != nil {
		r.metrics.IncPass("failed")
		return Summary{}, true, err
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"claimed":     summary.Claimed,
		"succeeded":   summary.Succeeded,
		"rescheduled": summary.Rescheduled,
		"given_up":    summary.GivenUp,
		"skipped":     summary.Skipped,
		"duration_ms": duration.Milliseconds(),
	})
	r.logg.Info(logCtx, "retry pass complete")
	r.metrics.IncPass("completed")
	return summary, true, nil
}
