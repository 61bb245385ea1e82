package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/api/middleware"
	"github.com/opsledger/webhooks-backend/api/responses"
	"github.com/opsledger/webhooks-backend/api/validators"
	"github.com/opsledger/webhooks-backend/internal/events"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

type EventEnqueuer interface {
	Enqueue(ctx context.Context, in events.EnqueueInput) ([]uuid.UUID, error)
}

type enqueueEventRequest struct {
	TenantID  uuid.UUID       `json:"tenant_id" validate:"required"`
	EventType string          `json:"event_type" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

type enqueueEventResponse struct {
	DeliveryIDs []uuid.UUID `json:"delivery_ids"`
}

// EnqueueEvent accepts a platform event over HTTP and fans it out into
// pending delivery attempts. The Pub/Sub consumer is the primary ingest
// path; this endpoint serves backfills and internal tooling.
func EnqueueEvent(svc EventEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Tenant-scoped tokens can only enqueue for their own tenant.
		if tokenTenant := middleware.TenantIDFromContext(r.Context()); tokenTenant != uuid.Nil && tokenTenant != req.TenantID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token is not scoped to this tenant"))
			return
		}

		ids, err := svc.Enqueue(r.Context(), events.EnqueueInput{
			TenantID:  req.TenantID,
			EventType: req.EventType,
			Payload:   req.Payload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, enqueueEventResponse{DeliveryIDs: ids})
	}
}
