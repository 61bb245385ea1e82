package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsledger/webhooks-backend/api/controllers"
	"github.com/opsledger/webhooks-backend/api/middleware"
	"github.com/opsledger/webhooks-backend/pkg/config"
	"github.com/opsledger/webhooks-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface needs. Nil pingers skip
// their readiness check; a nil Registry skips the metrics endpoint.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       controllers.Pinger
	RedisPinger    controllers.Pinger
	BigQueryPinger controllers.Pinger
	Registry       *prometheus.Registry
	PassRunner     controllers.PassRunner
	Deliveries     controllers.DeliveryReader
	Events         controllers.EventEnqueuer
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DBPinger, p.RedisPinger, p.BigQueryPinger))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/cron/webhook-retries", func(r chi.Router) {
		r.Get("/", controllers.WebhookRetriesLiveness())
		r.With(middleware.CronAuth(p.Config.Cron.Secret, p.Logger)).
			Post("/", controllers.ProcessWebhookRetries(p.PassRunner, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Use(middleware.Auth(p.Config.JWT, p.Logger))

		r.Post("/events", controllers.EnqueueEvent(p.Events, p.Logger))
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", controllers.ListDeliveries(p.Deliveries, p.Logger))
			r.Get("/{deliveryId}", controllers.GetDelivery(p.Deliveries, p.Logger))
		})
	})

	return r
}
