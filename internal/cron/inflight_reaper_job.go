package cron

import (
	"context"
	"errors"
	"time"

	"github.com/opsledger/webhooks-backend/pkg/logger"
)

type stuckReleaser interface {
	ReleaseStuckInFlight(ctx context.Context, olderThan time.Time, nextAttemptAt time.Time) (int64, error)
}

// InFlightReaperJob returns attempts stranded in flight by a crashed pass to
// the retryable pool so the next pass can reclaim them.
type InFlightReaperJob struct {
	logg    *logger.Logger
	store   stuckReleaser
	timeout time.Duration
	now     func() time.Time
}

// NewInFlightReaperJob wires the reaper. timeout is how long an attempt may
// sit in flight before it is considered abandoned.
func NewInFlightReaperJob(logg *logger.Logger, store stuckReleaser, timeout time.Duration) (*InFlightReaperJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if store == nil {
		return nil, errors.New("delivery store required")
	}
	if timeout <= 0 {
		return nil, errors.New("in-flight timeout must be positive")
	}
	return &InFlightReaperJob{logg: logg, store: store, timeout: timeout, now: time.Now}, nil
}

func (j *InFlightReaperJob) Name() string { return "inflight-reaper" }

func (j *InFlightReaperJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	released, err := j.store.ReleaseStuckInFlight(ctx, now.Add(-j.timeout), now)
	if err != nil {
		return err
	}
	if released > 0 {
		logCtx := j.logg.WithField(ctx, "released", released)
		j.logg.Warn(logCtx, "returned stuck in-flight attempts to the retry pool")
	}
	return nil
}
