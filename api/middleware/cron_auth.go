package middleware

import (
	"net/http"
	"strings"

	"github.com/opsledger/webhooks-backend/api/responses"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
	"github.com/opsledger/webhooks-backend/pkg/security"
)

// CronAuth guards the retry trigger endpoint with the shared cron secret.
// The platform scheduler sends it as a bearer token.
func CronAuth(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(secret) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron secret not configured"))
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" || !security.ConstantTimeEquals(token, secret) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
