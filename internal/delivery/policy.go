package delivery

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/enums"
)

// Action is the policy's verdict for a failed dispatch.
type Action string

const (
	ActionReschedule Action = "reschedule"
	ActionGiveUp     Action = "give_up"
)

// Decision carries the action plus the retry time when rescheduling.
type Decision struct {
	Action  Action
	RetryAt time.Time
}

// Policy computes backoff and terminal-failure decisions. It is pure given
// its jitter source; the scheduler injects the clock.
type Policy struct {
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	jitterFraction float64
	jitterFn       func(max int64) int64
}

// NewPolicy builds a policy from the retry configuration. Out-of-range values
// fall back to the documented defaults; the parameters are tunables, not
// contracts.
func NewPolicy(cfg config.RetryConfig) *Policy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 30 * time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < baseDelay {
		maxDelay = 24 * time.Hour
	}
	jitterFraction := cfg.JitterFraction
	if jitterFraction < 0 || jitterFraction > 1 {
		jitterFraction = 0.2
	}
	return &Policy{
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		maxDelay:       maxDelay,
		jitterFraction: jitterFraction,
		jitterFn:       rand.Int63n,
	}
}

// MaxAttempts returns the configured cap.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the delay before retrying after the n-th failed attempt
// (n >= 1): min(maxDelay, base * 2^(n-1)) plus uniform jitter in
// [0, delay * jitterFraction] so many subscriptions retrying at once spread
// out.
func (p *Policy) Backoff(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	delay := p.baseDelay
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	jitterWindow := int64(float64(delay) * p.jitterFraction)
	if jitterWindow > 0 {
		delay += time.Duration(p.jitterFn(jitterWindow))
	}
	return delay
}

// DecideFailure resolves a retryable dispatch failure. attemptCount is the
// count including the failure that just happened; hitting the cap gives up,
// otherwise the attempt is rescheduled with backoff from now.
func (p *Policy) DecideFailure(attemptCount int, now time.Time) Decision {
	if attemptCount >= p.maxAttempts {
		return Decision{Action: ActionGiveUp}
	}
	return Decision{
		Action:  ActionReschedule,
		RetryAt: now.Add(p.Backoff(attemptCount)),
	}
}

// Classify maps an HTTP response status to a dispatch outcome. 408, 429 and
// all 5xx are retryable; every other non-2xx (remaining 4xx plus 3xx, since
// redirects are never followed) signals a permanent endpoint-side rejection.
func Classify(statusCode int) enums.DispatchOutcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return enums.DispatchOutcomeSuccess
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return enums.DispatchOutcomeRetryable
	case statusCode >= 500:
		return enums.DispatchOutcomeRetryable
	default:
		return enums.DispatchOutcomePermanent
	}
}

func statusDetail(statusCode int) string {
	return fmt.Sprintf("endpoint returned status %d", statusCode)
}
