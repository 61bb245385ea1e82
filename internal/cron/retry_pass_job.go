package cron

import (
	"context"
	"errors"

	"github.com/opsledger/webhooks-backend/internal/delivery"
)

type passRunner interface {
	Run(ctx context.Context) (delivery.Summary, bool, error)
}

// RetryPassJob runs one webhook retry pass per cron cycle. The runner holds
// its own pass lock, so an overlapping HTTP-triggered pass is skipped, not
// duplicated.
type RetryPassJob struct {
	runner passRunner
}

// NewRetryPassJob wires the job to the pass runner.
func NewRetryPassJob(runner passRunner) (*RetryPassJob, error) {
	if runner == nil {
		return nil, errors.New("pass runner required")
	}
	return &RetryPassJob{runner: runner}, nil
}

func (j *RetryPassJob) Name() string { return "webhook-retry-pass" }

func (j *RetryPassJob) Run(ctx context.Context) error {
	_, _, err := j.runner.Run(ctx)
	return err
}
