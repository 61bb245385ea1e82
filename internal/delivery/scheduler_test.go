package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsledger/webhooks-backend/internal/analytics"
	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

type fakeStore struct {
	mu        sync.Mutex
	due       []models.WebhookDeliveryAttempt
	claimErr  error
	markErr   error
	recordErr error
	lostClaim map[uuid.UUID]bool
	outcomes  map[uuid.UUID]Outcome
}

func newFakeStore(due ...models.WebhookDeliveryAttempt) *fakeStore {
	return &fakeStore{
		due:       due,
		lostClaim: map[uuid.UUID]bool{},
		outcomes:  map[uuid.UUID]Outcome{},
	}
}

func (s *fakeStore) ClaimDueAttempts(ctx context.Context, now time.Time, limit int) ([]models.WebhookDeliveryAttempt, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeStore) MarkInFlight(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lostClaim[id], nil
}

func (s *fakeStore) RecordOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[id] = outcome
	return nil
}

type fakeSubs struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*subscriptions.Subscription
	err  error
}

func (f *fakeSubs) Find(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id], nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	result  DispatchResult
	calls   int
	lastSub subscriptions.Subscription
}

func (f *fakeDispatcher) Deliver(ctx context.Context, attempt models.WebhookDeliveryAttempt, sub subscriptions.Subscription) DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSub = sub
	return f.result
}

type fakeRecorder struct {
	mu      sync.Mutex
	rows    []analytics.DeliveryEventRow
	flushes int
}

func (f *fakeRecorder) Record(ctx context.Context, row analytics.DeliveryEventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeRecorder) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func dueAttempt(attemptCount int) models.WebhookDeliveryAttempt {
	return models.WebhookDeliveryAttempt{
		ID:             uuid.New(),
		TenantID:       uuid.New(),
		SubscriptionID: uuid.New(),
		EventType:      enums.EventInvoiceCreated,
		Payload:        []byte(`{"invoice_id":"inv_123"}`),
		Status:         enums.DeliveryStatusPending,
		AttemptCount:   attemptCount,
	}
}

func subscriptionFor(attempt models.WebhookDeliveryAttempt) *subscriptions.Subscription {
	return &subscriptions.Subscription{
		ID:         attempt.SubscriptionID,
		TenantID:   attempt.TenantID,
		URL:        "https://hooks.example.com/receiver",
		Secret:     "whsec_test",
		EventTypes: []string{string(attempt.EventType)},
		Enabled:    true,
	}
}

func newTestScheduler(t *testing.T, store *fakeStore, subs *fakeSubs, dispatcher *fakeDispatcher, recorder OutcomeRecorder) *Scheduler {
	t.Helper()

	policy := zeroJitterPolicy(config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		MaxDelay:    time.Hour,
	})
	sched, err := NewScheduler(SchedulerParams{
		Logger:        logger.New(logger.Options{ServiceName: "delivery-test"}),
		Store:         store,
		Subscriptions: subs,
		Dispatcher:    dispatcher,
		Policy:        policy,
		Recorder:      recorder,
		Now:           func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return sched
}

func TestRunPassSuccessfulDispatch(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: subscriptionFor(attempt)}}
	dispatcher := &fakeDispatcher{result: DispatchResult{Outcome: enums.DispatchOutcomeSuccess, StatusCode: 200}}
	recorder := &fakeRecorder{}

	sched := newTestScheduler(t, store, subs, dispatcher, recorder)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, Succeeded: 1}, summary)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, "whsec_test", dispatcher.lastSub.Secret)

	outcome, ok := store.outcomes[attempt.ID]
	require.True(t, ok)
	assert.Equal(t, enums.DeliveryStatusSucceeded, outcome.Status())

	require.Len(t, recorder.rows, 1)
	assert.Equal(t, attempt.ID.String(), recorder.rows[0].DeliveryID)
	assert.Equal(t, string(enums.DispatchOutcomeSuccess), recorder.rows[0].Outcome)
	assert.Equal(t, int64(1), recorder.rows[0].AttemptCount)
	assert.Equal(t, 1, recorder.flushes)
}

func TestRunPassReschedulesRetryableFailure(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: subscriptionFor(attempt)}}
	dispatcher := &fakeDispatcher{result: DispatchResult{
		Outcome:    enums.DispatchOutcomeRetryable,
		StatusCode: 503,
		Detail:     "endpoint returned status 503",
	}}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, Rescheduled: 1}, summary)
	outcome := store.outcomes[attempt.ID]
	assert.Equal(t, enums.DeliveryStatusFailedRetryable, outcome.Status())
	require.NotNil(t, outcome.nextAttemptAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC), *outcome.nextAttemptAt)
}

func TestRunPassGivesUpAtAttemptCap(t *testing.T) {
	attempt := dueAttempt(2) // this dispatch is attempt 3 of 3
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: subscriptionFor(attempt)}}
	dispatcher := &fakeDispatcher{result: DispatchResult{
		Outcome:    enums.DispatchOutcomeRetryable,
		StatusCode: 500,
		Detail:     "endpoint returned status 500",
	}}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, GivenUp: 1}, summary)
	outcome := store.outcomes[attempt.ID]
	assert.Equal(t, enums.DeliveryStatusFailedTerminal, outcome.Status())
	require.NotNil(t, outcome.detail)
	assert.Contains(t, *outcome.detail, "max attempts reached")
	assert.Nil(t, outcome.nextAttemptAt)
}

func TestRunPassPermanentFailureIsTerminal(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: subscriptionFor(attempt)}}
	dispatcher := &fakeDispatcher{result: DispatchResult{
		Outcome:    enums.DispatchOutcomePermanent,
		StatusCode: 400,
		Detail:     "endpoint returned status 400",
	}}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, GivenUp: 1}, summary)
	assert.Equal(t, enums.DeliveryStatusFailedTerminal, store.outcomes[attempt.ID].Status())
}

func TestRunPassSkipsLostClaims(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	store.lostClaim[attempt.ID] = true
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: subscriptionFor(attempt)}}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, Skipped: 1}, summary)
	assert.Zero(t, dispatcher.calls)
	assert.Empty(t, store.outcomes)
}

func TestRunPassMissingSubscriptionIsTerminal(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{}}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, GivenUp: 1}, summary)
	assert.Zero(t, dispatcher.calls)
	outcome := store.outcomes[attempt.ID]
	assert.Equal(t, enums.DeliveryStatusFailedTerminal, outcome.Status())
}

func TestRunPassDisabledSubscriptionIsTerminal(t *testing.T) {
	attempt := dueAttempt(0)
	sub := subscriptionFor(attempt)
	sub.Enabled = false
	store := newFakeStore(attempt)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{attempt.SubscriptionID: sub}}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, GivenUp: 1}, summary)
	assert.Zero(t, dispatcher.calls)
}

func TestRunPassSubscriptionLookupFailureReschedules(t *testing.T) {
	attempt := dueAttempt(0)
	store := newFakeStore(attempt)
	subs := &fakeSubs{err: errors.New("connection reset")}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, Rescheduled: 1}, summary)
	assert.Zero(t, dispatcher.calls)
	outcome := store.outcomes[attempt.ID]
	assert.Equal(t, enums.DeliveryStatusFailedRetryable, outcome.Status())
	require.NotNil(t, outcome.detail)
	assert.Contains(t, *outcome.detail, "subscription lookup failed")
}

func TestRunPassSubscriptionLookupFailureGivesUpAtCap(t *testing.T) {
	attempt := dueAttempt(2) // this failure is attempt 3 of 3
	store := newFakeStore(attempt)
	subs := &fakeSubs{err: errors.New("connection reset")}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Claimed: 1, GivenUp: 1}, summary)
	assert.Zero(t, dispatcher.calls)
	outcome := store.outcomes[attempt.ID]
	assert.Equal(t, enums.DeliveryStatusFailedTerminal, outcome.Status())
	assert.Nil(t, outcome.nextAttemptAt)
	require.NotNil(t, outcome.detail)
	assert.Contains(t, *outcome.detail, "max attempts reached")
	assert.Contains(t, *outcome.detail, "subscription lookup failed")
}

func TestRunPassClaimFailureSurfacesError(t *testing.T) {
	store := newFakeStore()
	store.claimErr = errors.New("database unavailable")

	sched := newTestScheduler(t, store, &fakeSubs{}, &fakeDispatcher{}, nil)
	_, err := sched.RunPass(context.Background())
	require.Error(t, err)
}

func TestRunPassEmptyBatch(t *testing.T) {
	sched := newTestScheduler(t, newFakeStore(), &fakeSubs{}, &fakeDispatcher{}, nil)
	summary, err := sched.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestRunPassSkipsRemainingWorkWhenContextCanceled(t *testing.T) {
	first := dueAttempt(0)
	second := dueAttempt(0)
	store := newFakeStore(first, second)
	subs := &fakeSubs{subs: map[uuid.UUID]*subscriptions.Subscription{}}
	dispatcher := &fakeDispatcher{}

	sched := newTestScheduler(t, store, subs, dispatcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := sched.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Claimed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, dispatcher.calls)
}
