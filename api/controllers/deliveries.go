package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/api/middleware"
	"github.com/opsledger/webhooks-backend/api/responses"
	"github.com/opsledger/webhooks-backend/api/validators"
	"github.com/opsledger/webhooks-backend/internal/delivery"
	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/pagination"
)

type DeliveryReader interface {
	ListAttempts(ctx context.Context, tenantID uuid.UUID, filter delivery.ListFilter, page pagination.Params) ([]models.WebhookDeliveryAttempt, int64, error)
	GetAttempt(ctx context.Context, tenantID, id uuid.UUID) (*models.WebhookDeliveryAttempt, error)
}

type deliveryAttemptDTO struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	EventType       string          `json:"event_type"`
	Status          string          `json:"status"`
	AttemptCount    int             `json:"attempt_count"`
	NextAttemptAt   *time.Time      `json:"next_attempt_at,omitempty"`
	LastError       *string         `json:"last_error,omitempty"`
	LastAttemptedAt *time.Time      `json:"last_attempted_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type deliveryListDTO struct {
	Deliveries []deliveryAttemptDTO `json:"deliveries"`
	Total      int64                `json:"total"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

func toDeliveryDTO(row models.WebhookDeliveryAttempt) deliveryAttemptDTO {
	return deliveryAttemptDTO{
		ID:              row.ID,
		TenantID:        row.TenantID,
		SubscriptionID:  row.SubscriptionID,
		EventType:       string(row.EventType),
		Status:          string(row.Status),
		AttemptCount:    row.AttemptCount,
		NextAttemptAt:   row.NextAttemptAt,
		LastError:       row.LastError,
		LastAttemptedAt: row.LastAttemptedAt,
		CreatedAt:       row.CreatedAt,
	}
}

// requestTenant resolves the tenant the request acts on. Tenant-scoped tokens
// are bound to their tenant; platform tokens pick one via ?tenant_id.
func requestTenant(r *http.Request) (uuid.UUID, error) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	if tenantID != uuid.Nil {
		return tenantID, nil
	}
	raw := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant_id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "tenant_id must be a uuid")
	}
	return parsed, nil
}

// ListDeliveries returns the tenant's delivery attempts newest first.
func ListDeliveries(reader DeliveryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := requestTenant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := delivery.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseDeliveryStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("event_type")); raw != "" {
			eventType, err := enums.ParseWebhookEventType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event_type filter"))
				return
			}
			filter.EventType = &eventType
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("subscription_id")); raw != "" {
			subID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "subscription_id must be a uuid"))
				return
			}
			filter.SubscriptionID = &subID
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := pagination.Params{Limit: limit, Offset: offset}

		rows, total, err := reader.ListAttempts(r.Context(), tenantID, filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries"))
			return
		}

		dto := deliveryListDTO{
			Deliveries: make([]deliveryAttemptDTO, 0, len(rows)),
			Total:      total,
			Limit:      limit,
			Offset:     offset,
		}
		for _, row := range rows {
			dto.Deliveries = append(dto.Deliveries, toDeliveryDTO(row))
		}
		responses.WriteSuccess(w, dto)
	}
}

// GetDelivery returns one delivery attempt scoped to the caller's tenant.
func GetDelivery(reader DeliveryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := requestTenant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveryID, err := uuid.Parse(chi.URLParam(r, "deliveryId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "deliveryId must be a uuid"))
			return
		}

		row, err := reader.GetAttempt(r.Context(), tenantID, deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get delivery"))
			return
		}
		if row == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found"))
			return
		}

		responses.WriteSuccess(w, toDeliveryDTO(*row))
	}
}
