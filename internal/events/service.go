package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/internal/subscriptions"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

// EnqueueInput is one platform event to fan out.
type EnqueueInput struct {
	TenantID  uuid.UUID
	EventType string
	Payload   json.RawMessage
}

type attemptCreator interface {
	CreateAttempts(ctx context.Context, attempts []models.WebhookDeliveryAttempt) error
}

type subscriptionLister interface {
	ListForEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]subscriptions.Subscription, error)
}

// Service fans a platform event out into one pending delivery attempt per
// matching enabled subscription.
type Service struct {
	logg  *logger.Logger
	subs  subscriptionLister
	store attemptCreator
	now   func() time.Time
}

// NewService validates the fanout wiring.
func NewService(logg *logger.Logger, subs subscriptionLister, store attemptCreator) (*Service, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if subs == nil {
		return nil, errors.New("subscription lister is required")
	}
	if store == nil {
		return nil, errors.New("attempt store is required")
	}
	return &Service{logg: logg, subs: subs, store: store, now: time.Now}, nil
}

// Enqueue creates the pending attempts and returns their ids. Attempts are
// due immediately (next_attempt_at = now); the next retry pass picks them up.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) ([]uuid.UUID, error) {
	eventType, err := enums.ParseWebhookEventType(in.EventType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown event type").
			WithDetails(map[string]any{"event_type": in.EventType})
	}
	if in.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if len(in.Payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}

	subs, err := s.subs.ListForEvent(ctx, in.TenantID, string(eventType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	now := s.now().UTC()
	attempts := make([]models.WebhookDeliveryAttempt, 0, len(subs))
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		id := uuid.New()
		attempts = append(attempts, models.WebhookDeliveryAttempt{
			ID:             id,
			TenantID:       in.TenantID,
			SubscriptionID: sub.ID,
			EventType:      eventType,
			Payload:        in.Payload,
			Status:         enums.DeliveryStatusPending,
			NextAttemptAt:  &now,
			CreatedAt:      now,
		})
		ids = append(ids, id)
	}

	if err := s.store.CreateAttempts(ctx, attempts); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery attempts")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":  in.TenantID.String(),
		"event_type": string(eventType),
		"fanout":     len(ids),
	})
	s.logg.Info(logCtx, "event fanned out")
	return ids, nil
}
