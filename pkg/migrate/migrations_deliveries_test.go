package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeliveryAttemptsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_webhook_delivery_attempts.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no delivery attempts migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE delivery_status AS ENUM",
		"CREATE TABLE IF NOT EXISTS webhook_delivery_attempts",
		"FOREIGN KEY (subscription_id) REFERENCES webhook_subscriptions(id) ON DELETE RESTRICT",
		"CHECK (attempt_count >= 0)",
		"WHERE status IN ('pending', 'failed_retryable')",
		"DROP TABLE IF EXISTS webhook_delivery_attempts",
		"DROP TYPE IF EXISTS delivery_status",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_webhook_subscriptions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no subscriptions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS webhook_subscriptions",
		"secret_ciphertext bytea NOT NULL",
		"event_types       text[] NOT NULL",
		"DROP TABLE IF EXISTS webhook_subscriptions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
