package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/pagination"
)

type staticSubs struct {
	sub subscriptions.Subscription
}

func (s *staticSubs) Find(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error) {
	if id != s.sub.ID {
		return nil, nil
	}
	copied := s.sub
	return &copied, nil
}

// Exercises the full retry lifecycle against the real store and dispatcher:
// an endpoint that fails three times before recovering must see exactly four
// requests and leave the attempt succeeded with the attempt count to match.
func TestRetryFlowRecoversAfterTransientFailures(t *testing.T) {
	db := setupDeliveryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attempt := newPendingAttempt(uuid.New(), start)
	require.NoError(t, repo.CreateAttempts(ctx, []models.WebhookDeliveryAttempt{attempt}))

	sub := subscriptions.Subscription{
		ID:         attempt.SubscriptionID,
		TenantID:   attempt.TenantID,
		URL:        server.URL,
		Secret:     "whsec_test",
		EventTypes: []string{string(attempt.EventType)},
		Enabled:    true,
	}

	current := start
	sched, err := NewScheduler(SchedulerParams{
		Logger:        logger.New(logger.Options{ServiceName: "delivery-test"}),
		Store:         repo,
		Subscriptions: &staticSubs{sub: sub},
		Dispatcher:    NewHTTPDispatcher(config.DispatchConfig{Timeout: 2 * time.Second}),
		Policy: zeroJitterPolicy(config.RetryConfig{
			MaxAttempts: 8,
			BaseDelay:   30 * time.Second,
			MaxDelay:    24 * time.Hour,
		}),
		Concurrency: 1,
		Now:         func() time.Time { return current },
	})
	require.NoError(t, err)

	// Three failing passes, each rescheduling with doubled backoff.
	for pass := 1; pass <= 3; pass++ {
		summary, err := sched.RunPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, Summary{Claimed: 1, Rescheduled: 1}, summary, "pass %d", pass)

		stored, err := repo.GetAttempt(ctx, attempt.TenantID, attempt.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, enums.DeliveryStatusFailedRetryable, stored.Status)
		assert.Equal(t, pass, stored.AttemptCount)
		require.NotNil(t, stored.NextAttemptAt)
		require.NotNil(t, stored.LastError)
		assert.Equal(t, "endpoint returned status 503", *stored.LastError)

		// An immediate re-run finds nothing due until the backoff elapses.
		idle, err := sched.RunPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, Summary{}, idle)

		current = stored.NextAttemptAt.Add(time.Second)
	}

	// Fourth pass reaches the recovered endpoint.
	summary, err := sched.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Claimed: 1, Succeeded: 1}, summary)
	assert.Equal(t, int64(4), hits.Load())

	stored, err := repo.GetAttempt(ctx, attempt.TenantID, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.DeliveryStatusSucceeded, stored.Status)
	assert.Equal(t, 4, stored.AttemptCount)
	assert.Nil(t, stored.NextAttemptAt)
	assert.Nil(t, stored.LastError)

	// A terminal attempt never becomes claimable again.
	idle, err := sched.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, idle)

	rows, total, err := repo.ListAttempts(ctx, attempt.TenantID, ListFilter{}, pagination.Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
}

// A permanently failing endpoint must exhaust the attempt budget and land in
// failed_terminal with the cap noted in last_error.
func TestRetryFlowExhaustsAttemptBudget(t *testing.T) {
	db := setupDeliveryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attempt := newPendingAttempt(uuid.New(), start)
	require.NoError(t, repo.CreateAttempts(ctx, []models.WebhookDeliveryAttempt{attempt}))

	sub := subscriptions.Subscription{
		ID:         attempt.SubscriptionID,
		TenantID:   attempt.TenantID,
		URL:        server.URL,
		Secret:     "whsec_test",
		EventTypes: []string{string(attempt.EventType)},
		Enabled:    true,
	}

	current := start
	sched, err := NewScheduler(SchedulerParams{
		Logger:        logger.New(logger.Options{ServiceName: "delivery-test"}),
		Store:         repo,
		Subscriptions: &staticSubs{sub: sub},
		Dispatcher:    NewHTTPDispatcher(config.DispatchConfig{Timeout: 2 * time.Second}),
		Policy: zeroJitterPolicy(config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
		}),
		Concurrency: 1,
		Now:         func() time.Time { return current },
	})
	require.NoError(t, err)

	for pass := 1; pass <= 3; pass++ {
		summary, err := sched.RunPass(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, summary.Claimed, "pass %d", pass)
		current = current.Add(time.Hour)
	}

	stored, err := repo.GetAttempt(ctx, attempt.TenantID, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.DeliveryStatusFailedTerminal, stored.Status)
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Nil(t, stored.NextAttemptAt)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "max attempts reached")
}
