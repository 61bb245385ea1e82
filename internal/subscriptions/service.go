package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/pkg/db/models"
)

// Subscription is the decrypted read model handed to the dispatcher. The
// plaintext signing secret never leaves this package except through it.
type Subscription struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	URL        string
	Secret     string
	EventTypes []string
	Enabled    bool
}

// SubscribesTo reports whether the subscription covers the given event type.
func (s Subscription) SubscribesTo(eventType string) bool {
	for _, candidate := range s.EventTypes {
		if candidate == eventType {
			return true
		}
	}
	return false
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	FindEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.WebhookSubscription, error)
}

type secretOpener interface {
	Open(sealed []byte) ([]byte, error)
}

// Service resolves subscriptions and unseals their signing secrets.
type Service struct {
	repo   repository
	sealer secretOpener
}

// NewService wires the repository and the secret sealer.
func NewService(repo repository, sealer secretOpener) (*Service, error) {
	if repo == nil {
		return nil, errors.New("subscription repository is required")
	}
	if sealer == nil {
		return nil, errors.New("secret sealer is required")
	}
	return &Service{repo: repo, sealer: sealer}, nil
}

// Find returns the decrypted subscription or nil when it does not exist.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	sub, err := s.decrypt(*row)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListForEvent returns the tenant's enabled subscriptions covering eventType.
func (s *Service) ListForEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]Subscription, error) {
	rows, err := s.repo.FindEnabledByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	subs := make([]Subscription, 0, len(rows))
	for _, row := range rows {
		if !row.SubscribesTo(eventType) {
			continue
		}
		sub, err := s.decrypt(row)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Service) decrypt(row models.WebhookSubscription) (Subscription, error) {
	secret, err := s.sealer.Open(row.SecretCiphertext)
	if err != nil {
		return Subscription{}, fmt.Errorf("unseal secret for subscription %s: %w", row.ID, err)
	}
	return Subscription{
		ID:         row.ID,
		TenantID:   row.TenantID,
		URL:        row.URL,
		Secret:     string(secret),
		EventTypes: []string(row.EventTypes),
		Enabled:    row.Enabled,
	}, nil
}
