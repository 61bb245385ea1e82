package analytics

import "time"

// DeliveryEventRow is one dispatch outcome fact exported to BigQuery for
// per-tenant delivery dashboards.
type DeliveryEventRow struct {
	DeliveryID     string    `bigquery:"delivery_id"`
	TenantID       string    `bigquery:"tenant_id"`
	SubscriptionID string    `bigquery:"subscription_id"`
	EventType      string    `bigquery:"event_type"`
	Outcome        string    `bigquery:"outcome"`
	StatusCode     int64     `bigquery:"status_code"`
	LatencyMs      int64     `bigquery:"latency_ms"`
	AttemptCount   int64     `bigquery:"attempt_count"`
	OccurredAt     time.Time `bigquery:"occurred_at"`
}
