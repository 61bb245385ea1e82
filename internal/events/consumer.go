package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

// Envelope is the platform event message consumed from Pub/Sub.
type Envelope struct {
	EventID    string          `json:"event_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type enqueuer interface {
	Enqueue(ctx context.Context, in EnqueueInput) ([]uuid.UUID, error)
}

// Consumer turns platform event messages into delivery attempts. Malformed
// messages are acked and logged; transient failures are nacked for
// redelivery.
type Consumer struct {
	fanout       enqueuer
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer constructs a consumer watching the events subscription.
func NewConsumer(fanout enqueuer, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if fanout == nil {
		return nil, errors.New("fanout service is required")
	}
	if subscription == nil {
		return nil, errors.New("events subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{fanout: fanout, subscription: subscription, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, msgID string, data []byte) bool {
	logCtx := c.logg.WithField(ctx, "message_id", msgID)

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to unmarshal event envelope", err)
		return true
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": envelope.EventType,
		"tenant_id":  envelope.TenantID.String(),
	})

	_, err := c.fanout.Enqueue(ctx, EnqueueInput{
		TenantID:  envelope.TenantID,
		EventType: envelope.EventType,
		Payload:   envelope.Payload,
	})
	if err == nil {
		return true
	}

	// Validation failures can never succeed on redelivery; anything else
	// (store down) is worth another try.
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
		c.logg.Error(logCtx, "dropping invalid event message", err)
		return true
	}
	c.logg.Error(logCtx, "event fanout failed; message will be redelivered", err)
	return false
}
