package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/opsledger/webhooks-backend/api/responses"
	pkgauth "github.com/opsledger/webhooks-backend/pkg/auth"
	"github.com/opsledger/webhooks-backend/pkg/config"
	pkgerrors "github.com/opsledger/webhooks-backend/pkg/errors"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

// Auth validates a service bearer token and seeds the request context with
// the tenant scope. Tenant-scoped tokens carry a tenant id; platform-internal
// tokens carry none and may act on any tenant.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseServiceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithScope(r.Context(), claims.Scope)
			tenantID := uuid.Nil
			if claims.TenantID != nil {
				tenantID = *claims.TenantID
			}
			ctx = WithTenantID(ctx, tenantID)

			if logg != nil && tenantID != uuid.Nil {
				ctx = logg.WithTenantID(ctx, tenantID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
