package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/opsledger/webhooks-backend/api/responses"
	"github.com/opsledger/webhooks-backend/internal/delivery"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

type PassRunner interface {
	Run(ctx context.Context) (delivery.Summary, bool, error)
}

// retryTriggerResponse is the raw contract the platform scheduler expects;
// it predates the data envelope.
type retryTriggerResponse struct {
	Success   bool              `json:"success"`
	Timestamp string            `json:"timestamp"`
	Ran       bool              `json:"ran"`
	Summary   *delivery.Summary `json:"summary,omitempty"`
}

// ProcessWebhookRetries runs one retry pass on demand.
func ProcessWebhookRetries(runner PassRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, ran, err := runner.Run(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retry pass failed"))
			return
		}

		resp := retryTriggerResponse{
			Success:   true,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Ran:       ran,
		}
		if ran {
			resp.Summary = &summary
		}
		responses.WriteRaw(w, http.StatusOK, resp)
	}
}

// WebhookRetriesLiveness lets the platform scheduler verify the trigger
// endpoint is reachable without running a pass.
func WebhookRetriesLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteRaw(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
