package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// WebhookSubscription is a tenant-owned delivery target. Subscriptions are
// managed by the platform admin API; this service only reads them. The signing
// secret is sealed at rest and decrypted by the subscription store.
type WebhookSubscription struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID         uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null"`
	URL              string         `gorm:"column:url;not null"`
	SecretCiphertext []byte         `gorm:"column:secret_ciphertext;type:bytea;not null"`
	EventTypes       pq.StringArray `gorm:"column:event_types;type:text[];not null"`
	Enabled          bool           `gorm:"column:enabled;not null;default:true"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// SubscribesTo reports whether the subscription covers the given event type.
func (s WebhookSubscription) SubscribesTo(eventType string) bool {
	for _, candidate := range s.EventTypes {
		if candidate == eventType {
			return true
		}
	}
	return false
}
