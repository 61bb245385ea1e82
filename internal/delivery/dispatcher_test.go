package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
)

func testAttempt() models.WebhookDeliveryAttempt {
	return models.WebhookDeliveryAttempt{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		EventType: enums.EventInvoiceCreated,
		Payload:   []byte(`{"invoice_id":"inv_123","amount_cents":4200}`),
	}
}

func testSubscription(url string) subscriptions.Subscription {
	return subscriptions.Subscription{
		ID:         uuid.New(),
		URL:        url,
		Secret:     "whsec_test",
		EventTypes: []string{string(enums.EventInvoiceCreated)},
		Enabled:    true,
	}
}

func TestDeliverSuccessSignsAndSetsHeaders(t *testing.T) {
	attempt := testAttempt()

	var gotBody []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{Timeout: 2 * time.Second})
	result := dispatcher.Deliver(context.Background(), attempt, testSubscription(server.URL))

	require.Equal(t, enums.DispatchOutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Empty(t, result.Detail)

	assert.Equal(t, []byte(attempt.Payload), gotBody)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, string(attempt.EventType), gotHeaders.Get("X-Webhook-Event"))
	assert.Equal(t, attempt.ID.String(), gotHeaders.Get("X-Webhook-Delivery"))

	_, err := time.Parse(time.RFC3339, gotHeaders.Get("X-Webhook-Timestamp"))
	assert.NoError(t, err)

	sig := gotHeaders.Get("X-Webhook-Signature")
	assert.True(t, Verify("whsec_test", gotBody, sig), "receiver-side verification must pass")
}

func TestDeliverClassifiesServerErrorsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription(server.URL))

	assert.Equal(t, enums.DispatchOutcomeRetryable, result.Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, "endpoint returned status 503", result.Detail)
}

func TestDeliverClassifiesClientErrorsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription(server.URL))

	assert.Equal(t, enums.DispatchOutcomePermanent, result.Outcome)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
}

func TestDeliverDoesNotFollowRedirects(t *testing.T) {
	redirected := false
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirected = true
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusMovedPermanently)
	}))
	defer server.Close()

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription(server.URL))

	assert.False(t, redirected, "redirect target must never receive the payload")
	assert.Equal(t, enums.DispatchOutcomePermanent, result.Outcome)
	assert.Equal(t, http.StatusMovedPermanently, result.StatusCode)
}

func TestDeliverTransportErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{Timeout: time.Second})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription(server.URL))

	assert.Equal(t, enums.DispatchOutcomeRetryable, result.Outcome)
	assert.Zero(t, result.StatusCode)
	assert.Contains(t, result.Detail, "dispatch failed")
}

func TestDeliverTimeoutIsRetryable(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	dispatcher := NewHTTPDispatcher(config.DispatchConfig{Timeout: 50 * time.Millisecond})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription(server.URL))

	assert.Equal(t, enums.DispatchOutcomeRetryable, result.Outcome)
}

func TestDeliverInvalidURLIsPermanent(t *testing.T) {
	dispatcher := NewHTTPDispatcher(config.DispatchConfig{})
	result := dispatcher.Deliver(context.Background(), testAttempt(), testSubscription("http://\x00bad"))

	assert.Equal(t, enums.DispatchOutcomePermanent, result.Outcome)
	assert.Contains(t, result.Detail, "invalid endpoint url")
}
