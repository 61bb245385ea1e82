package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsledger/webhooks-backend/pkg/db/models"
	"github.com/opsledger/webhooks-backend/pkg/enums"
	"github.com/opsledger/webhooks-backend/pkg/pagination"
)

var claimableStatuses = []enums.DeliveryStatus{
	enums.DeliveryStatusPending,
	enums.DeliveryStatusFailedRetryable,
}

// Repository is the delivery record store. All mutation is single-row
// conditional updates; exclusivity between concurrent passes comes from the
// MarkInFlight guard, never from a transaction or in-process lock.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs the attempt store on the shared GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// CreateAttempts inserts the fanned-out pending attempts in one batch.
func (r *Repository) CreateAttempts(ctx context.Context, attempts []models.WebhookDeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	if err := r.conn(ctx).Create(&attempts).Error; err != nil {
		return fmt.Errorf("create delivery attempts: %w", err)
	}
	return nil
}

// ClaimDueAttempts returns up to limit due attempts ordered by next_attempt_at
// then id for determinism. This is a plain read: the race-safe transition
// happens per row in MarkInFlight, so overlapping passes stay correct.
func (r *Repository) ClaimDueAttempts(ctx context.Context, now time.Time, limit int) ([]models.WebhookDeliveryAttempt, error) {
	var rows []models.WebhookDeliveryAttempt
	err := r.conn(ctx).
		Where("status IN ? AND next_attempt_at <= ?", claimableStatuses, now).
		Order("next_attempt_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("claim due attempts: %w", err)
	}
	return rows, nil
}

// MarkInFlight transitions the attempt into in_flight, but only while it is
// still claimable and due. Returns false when another pass won the race,
// which callers treat as a benign skip.
func (r *Repository) MarkInFlight(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.conn(ctx).
		Model(&models.WebhookDeliveryAttempt{}).
		Where("id = ? AND status IN ? AND next_attempt_at <= ?", id, claimableStatuses, now).
		Updates(map[string]any{
			"status":            enums.DeliveryStatusInFlight,
			"last_attempted_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark in flight %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordOutcome persists a dispatch result as one atomic update guarded on
// the in_flight status, bumping attempt_count and the bookkeeping columns.
func (r *Repository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	res := r.conn(ctx).
		Model(&models.WebhookDeliveryAttempt{}).
		Where("id = ? AND status = ?", id, enums.DeliveryStatusInFlight).
		Updates(map[string]any{
			"status":            outcome.status,
			"attempt_count":     gorm.Expr("attempt_count + 1"),
			"next_attempt_at":   outcome.nextAttemptAt,
			"last_error":        outcome.detail,
			"last_attempted_at": outcome.attemptedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("record outcome %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attempt %s is not in flight", id)
	}
	return nil
}

// ReleaseStuckInFlight returns attempts abandoned by a crashed pass to
// failed_retryable so the next pass can claim them. olderThan bounds how
// stale last_attempted_at must be; nextAttemptAt is when they become due.
func (r *Repository) ReleaseStuckInFlight(ctx context.Context, olderThan, nextAttemptAt time.Time) (int64, error) {
	res := r.conn(ctx).
		Model(&models.WebhookDeliveryAttempt{}).
		Where("status = ? AND last_attempted_at < ?", enums.DeliveryStatusInFlight, olderThan).
		Updates(map[string]any{
			"status":          enums.DeliveryStatusFailedRetryable,
			"next_attempt_at": nextAttemptAt,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release stuck in-flight attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListFilter narrows the tenant-scoped audit listing.
type ListFilter struct {
	Status         *enums.DeliveryStatus
	EventType      *enums.WebhookEventType
	SubscriptionID *uuid.UUID
}

// ListAttempts returns the tenant's attempts newest first plus the unpaged
// total. This is the read-only audit surface; it never mutates state.
func (r *Repository) ListAttempts(ctx context.Context, tenantID uuid.UUID, filter ListFilter, page pagination.Params) ([]models.WebhookDeliveryAttempt, int64, error) {
	page = page.Normalize()

	query := r.conn(ctx).
		Model(&models.WebhookDeliveryAttempt{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *filter.SubscriptionID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count delivery attempts: %w", err)
	}

	var rows []models.WebhookDeliveryAttempt
	err := query.
		Order("created_at desc, id desc").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery attempts: %w", err)
	}
	return rows, total, nil
}

// GetAttempt returns one tenant-scoped attempt or nil when absent.
func (r *Repository) GetAttempt(ctx context.Context, tenantID, id uuid.UUID) (*models.WebhookDeliveryAttempt, error) {
	var row models.WebhookDeliveryAttempt
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery attempt %s: %w", id, err)
	}
	return &row, nil
}
