package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsledger/webhooks-backend/pkg/db/models"
)

// Repository reads webhook subscriptions. The platform admin API owns writes;
// this service only ever queries.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a read-side subscription repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// FindByID returns the subscription or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	var row models.WebhookSubscription
	err := r.conn(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription %s: %w", id, err)
	}
	return &row, nil
}

// FindEnabledByTenant returns every enabled subscription for the tenant.
// Event-type matching happens in Go against the text[] column so the query
// stays portable across postgres and the sqlite test driver.
func (r *Repository) FindEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.WebhookSubscription, error) {
	var rows []models.WebhookSubscription
	err := r.conn(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find enabled subscriptions for tenant %s: %w", tenantID, err)
	}
	return rows, nil
}
