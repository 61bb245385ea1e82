package enums

import "fmt"

// DeliveryStatus maps to the delivery_status enum in Postgres.
type DeliveryStatus string

const (
	DeliveryStatusPending         DeliveryStatus = "pending"
	DeliveryStatusInFlight        DeliveryStatus = "in_flight"
	DeliveryStatusSucceeded       DeliveryStatus = "succeeded"
	DeliveryStatusFailedRetryable DeliveryStatus = "failed_retryable"
	DeliveryStatusFailedTerminal  DeliveryStatus = "failed_terminal"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusInFlight,
	DeliveryStatusSucceeded,
	DeliveryStatusFailedRetryable,
	DeliveryStatusFailedTerminal,
}

// IsValid reports whether the value matches the canonical delivery_status enum.
func (s DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is absorbing. Terminal attempts carry
// a null next_attempt_at and are never claimed again.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSucceeded || s == DeliveryStatusFailedTerminal
}

// ParseDeliveryStatus converts raw input into DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
