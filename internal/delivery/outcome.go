package delivery

import (
	"time"

	"github.com/opsledger/webhooks-backend/pkg/enums"
)

// Outcome is the persisted result of one dispatch. Exactly one constructor
// applies per dispatch; RecordOutcome turns it into a single conditional row
// update.
type Outcome struct {
	status        enums.DeliveryStatus
	detail        *string
	nextAttemptAt *time.Time
	attemptedAt   time.Time
}

// SuccessOutcome marks the attempt delivered. Clears last_error and
// next_attempt_at, both absorbing-state invariants.
func SuccessOutcome(attemptedAt time.Time) Outcome {
	return Outcome{
		status:      enums.DeliveryStatusSucceeded,
		attemptedAt: attemptedAt,
	}
}

// RetryableOutcome reschedules the attempt for retryAt with the failure detail.
func RetryableOutcome(attemptedAt, retryAt time.Time, detail string) Outcome {
	return Outcome{
		status:        enums.DeliveryStatusFailedRetryable,
		detail:        &detail,
		nextAttemptAt: &retryAt,
		attemptedAt:   attemptedAt,
	}
}

// TerminalOutcome gives up on the attempt permanently.
func TerminalOutcome(attemptedAt time.Time, detail string) Outcome {
	return Outcome{
		status:      enums.DeliveryStatusFailedTerminal,
		detail:      &detail,
		attemptedAt: attemptedAt,
	}
}

// Status exposes the target delivery status for logging and tests.
func (o Outcome) Status() enums.DeliveryStatus {
	return o.status
}

// Summary aggregates one retry pass. Per-attempt failures are counted here,
// never propagated to the pass caller.
type Summary struct {
	Claimed     int `json:"claimed"`
	Succeeded   int `json:"succeeded"`
	Rescheduled int `json:"rescheduled"`
	GivenUp     int `json:"given_up"`
	Skipped     int `json:"skipped"`
}
