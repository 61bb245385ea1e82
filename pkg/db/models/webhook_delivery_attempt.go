package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/pkg/enums"
)

// WebhookDeliveryAttempt tracks one logical webhook event destined for one
// subscription, from enqueue through retries to a terminal state. Rows are
// never deleted; they are the delivery audit trail.
//
// State machine: pending -> in_flight -> succeeded
// in_flight -> failed_retryable -> (when due) in_flight
// in_flight -> failed_terminal
// succeeded and failed_terminal are absorbing and carry a null next_attempt_at.
type WebhookDeliveryAttempt struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID       uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null"`
	SubscriptionID uuid.UUID              `gorm:"column:subscription_id;type:uuid;not null"`
	EventType      enums.WebhookEventType `gorm:"column:event_type;not null"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`

	Status          enums.DeliveryStatus `gorm:"column:status;type:delivery_status;not null;default:pending"`
	AttemptCount    int                  `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt   *time.Time           `gorm:"column:next_attempt_at"`
	LastError       *string              `gorm:"column:last_error"`
	LastAttemptedAt *time.Time           `gorm:"column:last_attempted_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// IsTerminal reports whether the attempt reached an absorbing state.
func (a WebhookDeliveryAttempt) IsTerminal() bool {
	return a.Status.IsTerminal()
}
