package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opsledger/webhooks-backend/internal/analytics"
	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/metrics"
)

const (
	defaultBatchSize   = 50
	defaultConcurrency = 10
)

// Store is the delivery record store surface the scheduler drives.
type Store interface {
	ClaimDueAttempts(ctx context.Context, now time.Time, limit int) ([]models.WebhookDeliveryAttempt, error)
	MarkInFlight(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error
}

// SubscriptionSource resolves decrypted subscriptions for dispatch.
type SubscriptionSource interface {
	Find(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error)
}

// Dispatcher performs one outbound delivery attempt.
type Dispatcher interface {
	Deliver(ctx context.Context, attempt models.WebhookDeliveryAttempt, sub subscriptions.Subscription) DispatchResult
}

// OutcomeRecorder exports dispatch facts for analytics. Optional; failures
// are logged and never affect the pass.
type OutcomeRecorder interface {
	Record(ctx context.Context, row analytics.DeliveryEventRow) error
	Flush(ctx context.Context) error
}

// SchedulerParams configure a retry scheduler.
type SchedulerParams struct {
	Logger        *logger.Logger
	Store         Store
	Subscriptions SubscriptionSource
	Dispatcher    Dispatcher
	Policy        *Policy
	Metrics       *metrics.DeliveryMetrics
	Recorder      OutcomeRecorder
	BatchSize     int
	Concurrency   int
	Now           func() time.Time
}

// Scheduler runs bounded retry passes: claim due attempts, dispatch them
// under bounded concurrency, persist each outcome. A pass only fails as a
// whole when the store itself is unreachable.
type Scheduler struct {
	logg        *logger.Logger
	store       Store
	subs        SubscriptionSource
	dispatcher  Dispatcher
	policy      *Policy
	metrics     *metrics.DeliveryMetrics
	recorder    OutcomeRecorder
	batchSize   int
	concurrency int
	now         func() time.Time
}

// NewScheduler validates the wiring and applies defaults.
func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Store == nil {
		return nil, errors.New("delivery store is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription source is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if params.Policy == nil {
		return nil, errors.New("retry policy is required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		logg:        params.Logger,
		store:       params.Store,
		subs:        params.Subscriptions,
		dispatcher:  params.Dispatcher,
		policy:      params.Policy,
		metrics:     params.Metrics,
		recorder:    params.Recorder,
		batchSize:   batchSize,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// RunPass executes one bounded batch. Per-attempt failures are recorded in
// the store and counted in the summary; only a claim-time store failure
// surfaces as an error.
func (s *Scheduler) RunPass(ctx context.Context) (Summary, error) {
	now := s.now().UTC()
	attempts, err := s.store.ClaimDueAttempts(ctx, now, s.batchSize)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim due attempts")
	}

	summary := Summary{Claimed: len(attempts)}
	if len(attempts) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	group := &errgroup.Group{}
	group.SetLimit(s.concurrency)

	for _, attempt := range attempts {
		attempt := attempt
		group.Go(func() error {
			// Once the context is canceled we stop picking up work;
			// unclaimed due attempts stay for the next pass.
			if ctx.Err() != nil {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}
			result := s.processAttempt(ctx, attempt)
			mu.Lock()
			switch result {
			case enums.DeliveryStatusSucceeded:
				summary.Succeeded++
			case enums.DeliveryStatusFailedRetryable:
				summary.Rescheduled++
			case enums.DeliveryStatusFailedTerminal:
				summary.GivenUp++
			default:
				summary.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	s.flushRecorder(ctx)
	return summary, nil
}

// processAttempt drives one attempt through claim, dispatch, policy, and
// persistence. It returns the resulting status, or "" when the attempt was
// skipped (lost claim or store write failure).
func (s *Scheduler) processAttempt(ctx context.Context, attempt models.WebhookDeliveryAttempt) enums.DeliveryStatus {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"delivery_id":     attempt.ID.String(),
		"tenant_id":       attempt.TenantID.String(),
		"subscription_id": attempt.SubscriptionID.String(),
		"event_type":      string(attempt.EventType),
		"attempt_count":   attempt.AttemptCount,
	})

	claimed, err := s.store.MarkInFlight(ctx, attempt.ID, s.now().UTC())
	if err != nil {
		s.logg.Error(logCtx, "claim write failed", err)
		return ""
	}
	if !claimed {
		// Another pass won the conditional update. Benign.
		return ""
	}

	sub, err := s.subs.Find(ctx, attempt.SubscriptionID)
	if err != nil {
		s.logg.Error(logCtx, "subscription lookup failed", err)
		failedAt := s.now().UTC()
		detail := "subscription lookup failed: " + err.Error()
		decision := s.policy.DecideFailure(attempt.AttemptCount+1, failedAt)
		if decision.Action == ActionGiveUp {
			return s.persist(logCtx, attempt.ID, TerminalOutcome(failedAt, "max attempts reached: "+detail), enums.DispatchOutcomeRetryable, attempt, DispatchResult{})
		}
		return s.persist(logCtx, attempt.ID, RetryableOutcome(failedAt, decision.RetryAt, detail), enums.DispatchOutcomeRetryable, attempt, DispatchResult{})
	}
	if sub == nil || !sub.Enabled || !sub.SubscribesTo(string(attempt.EventType)) {
		// Nothing to deliver to; retrying cannot help.
		return s.persist(logCtx, attempt.ID, TerminalOutcome(
			s.now().UTC(),
			"subscription missing, disabled, or no longer covers event",
		), enums.DispatchOutcomePermanent, attempt, DispatchResult{})
	}

	result := s.dispatcher.Deliver(ctx, attempt, *sub)
	s.metrics.ObserveDispatchLatency(string(result.Outcome), result.Latency)

	attemptedAt := s.now().UTC()
	switch result.Outcome {
	case enums.DispatchOutcomeSuccess:
		return s.persist(logCtx, attempt.ID, SuccessOutcome(attemptedAt), result.Outcome, attempt, result)
	case enums.DispatchOutcomePermanent:
		return s.persist(logCtx, attempt.ID, TerminalOutcome(attemptedAt, result.Detail), result.Outcome, attempt, result)
	default:
		decision := s.policy.DecideFailure(attempt.AttemptCount+1, attemptedAt)
		if decision.Action == ActionGiveUp {
			return s.persist(logCtx, attempt.ID, TerminalOutcome(attemptedAt, "max attempts reached: "+result.Detail), result.Outcome, attempt, result)
		}
		return s.persist(logCtx, attempt.ID, RetryableOutcome(attemptedAt, decision.RetryAt, result.Detail), result.Outcome, attempt, result)
	}
}

func (s *Scheduler) persist(ctx context.Context, id uuid.UUID, outcome Outcome, dispatched enums.DispatchOutcome, attempt models.WebhookDeliveryAttempt, result DispatchResult) enums.DeliveryStatus {
	if err := s.store.RecordOutcome(ctx, id, outcome); err != nil {
		s.logg.Error(ctx, "record outcome failed", err)
		return ""
	}

	status := outcome.Status()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"status":      string(status),
		"http_status": result.StatusCode,
		"latency_ms":  result.Latency.Milliseconds(),
	})
	switch status {
	case enums.DeliveryStatusSucceeded:
		s.logg.Info(logCtx, "webhook delivered")
	case enums.DeliveryStatusFailedTerminal:
		s.logg.Warn(logCtx, "webhook delivery abandoned")
	default:
		s.logg.Info(logCtx, "webhook delivery rescheduled")
	}

	s.metrics.IncAttempt(string(dispatched))
	s.record(ctx, attempt, dispatched, result)
	return status
}

func (s *Scheduler) record(ctx context.Context, attempt models.WebhookDeliveryAttempt, dispatched enums.DispatchOutcome, result DispatchResult) {
	if s.recorder == nil {
		return
	}
	row := analytics.DeliveryEventRow{
		DeliveryID:     attempt.ID.String(),
		TenantID:       attempt.TenantID.String(),
		SubscriptionID: attempt.SubscriptionID.String(),
		EventType:      string(attempt.EventType),
		Outcome:        string(dispatched),
		StatusCode:     int64(result.StatusCode),
		LatencyMs:      result.Latency.Milliseconds(),
		AttemptCount:   int64(attempt.AttemptCount + 1),
		OccurredAt:     s.now().UTC(),
	}
	if err := s.recorder.Record(ctx, row); err != nil {
		s.logg.Error(ctx, "record delivery fact failed", err)
	}
}

func (s *Scheduler) flushRecorder(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Flush(ctx); err != nil {
		s.logg.Error(ctx, "flush delivery facts failed", err)
	}
}
