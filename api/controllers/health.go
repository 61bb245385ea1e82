package controllers

import (
	"context"
	"net/http"

	"github.com/opsledger/webhooks-backend/api/responses"
	"github.com/opsledger/webhooks-backend/pkg/config"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

// Pinger is the health check surface each dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Webhooks-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every wired dependency answers a ping.
// Nil pingers are skipped so each binary checks only what it actually uses.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP, bigqueryP Pinger) http.HandlerFunc {
	checks := []struct {
		name string
		dep  Pinger
	}{
		{"database", dbP},
		{"redis", redisP},
		{"bigquery", bigqueryP},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Webhooks-Env", cfg.App.Env)

		for _, check := range checks {
			if check.dep == nil {
				continue
			}
			if err := check.dep.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
						WithDetails(map[string]any{"dependency": check.name}))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
