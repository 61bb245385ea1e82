package enums

import "fmt"

// WebhookEventType enumerates the platform events tenants can subscribe to.
// Values are part of the public webhook contract and use dotted namespacing.
type WebhookEventType string

const (
	EventInvoiceCreated     WebhookEventType = "invoice.created"
	EventInvoiceSent        WebhookEventType = "invoice.sent"
	EventInvoicePaid        WebhookEventType = "invoice.paid"
	EventInvoiceOverdue     WebhookEventType = "invoice.overdue"
	EventApprovalRequested  WebhookEventType = "approval.requested"
	EventApprovalCompleted  WebhookEventType = "approval.completed"
	EventApprovalRejected   WebhookEventType = "approval.rejected"
	EventContactCreated     WebhookEventType = "contact.created"
	EventContactUpdated     WebhookEventType = "contact.updated"
	EventDealStageChanged   WebhookEventType = "deal.stage_changed"
	EventScreeningCompleted WebhookEventType = "screening.completed"
	EventSignatureRequested WebhookEventType = "signature.requested"
	EventSignatureCompleted WebhookEventType = "signature.completed"
	EventSignatureDeclined  WebhookEventType = "signature.declined"
)

var validWebhookEventTypes = []WebhookEventType{
	EventInvoiceCreated,
	EventInvoiceSent,
	EventInvoicePaid,
	EventInvoiceOverdue,
	EventApprovalRequested,
	EventApprovalCompleted,
	EventApprovalRejected,
	EventContactCreated,
	EventContactUpdated,
	EventDealStageChanged,
	EventScreeningCompleted,
	EventSignatureRequested,
	EventSignatureCompleted,
	EventSignatureDeclined,
}

// IsValid reports whether the value matches the canonical event catalog.
func (e WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseWebhookEventType converts raw input into WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	for _, candidate := range validWebhookEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event type %q", value)
}
