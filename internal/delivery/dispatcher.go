package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
)

const (
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
	headerEventType = "X-Webhook-Event"
	headerDelivery  = "X-Webhook-Delivery"

	defaultDispatchTimeout = 10 * time.Second
	maxResponseBodyBytes   = 64 * 1024
)

// DispatchResult classifies one outbound delivery attempt.
type DispatchResult struct {
	Outcome    enums.DispatchOutcome
	StatusCode int
	Detail     string
	Latency    time.Duration
}

// HTTPDispatcher posts signed webhook payloads to subscription endpoints.
// Redirects are never followed: a 3xx would move the signed payload outside
// the scope the signature was computed for, so it is classified as-is.
type HTTPDispatcher struct {
	client *http.Client
	now    func() time.Time
}

// NewHTTPDispatcher builds a dispatcher with the configured bounded timeout.
func NewHTTPDispatcher(cfg config.DispatchConfig) *HTTPDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &HTTPDispatcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Deliver posts the stored payload to the subscription URL and classifies the
// response. Transport errors (timeout, refused connection, DNS) come back as
// retryable with a synthetic detail; they never panic or propagate.
func (d *HTTPDispatcher) Deliver(ctx context.Context, attempt models.WebhookDeliveryAttempt, sub subscriptions.Subscription) DispatchResult {
	start := d.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(attempt.Payload))
	if err != nil {
		return DispatchResult{
			Outcome: enums.DispatchOutcomePermanent,
			Detail:  "invalid endpoint url: " + err.Error(),
			Latency: d.now().Sub(start),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, Sign(sub.Secret, attempt.Payload))
	req.Header.Set(headerTimestamp, start.UTC().Format(time.RFC3339))
	req.Header.Set(headerEventType, string(attempt.EventType))
	req.Header.Set(headerDelivery, attempt.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return DispatchResult{
			Outcome: enums.DispatchOutcomeRetryable,
			Detail:  "dispatch failed: " + err.Error(),
			Latency: d.now().Sub(start),
		}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))

	result := DispatchResult{
		Outcome:    Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Latency:    d.now().Sub(start),
	}
	if result.Outcome != enums.DispatchOutcomeSuccess {
		result.Detail = statusDetail(resp.StatusCode)
	}
	return result
}
