package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/storefront/platform/health/http"
	platformobservability "github.com/shestoi/storefront/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер stock ledger.
// checks — проверки зависимостей для /health (503, если хоть одна падает).
// gatherer — реестр prometheus для /metrics.
func NewRouter(handler *Handler, checks map[string]platformhealth.Check, gatherer prometheus.Gatherer, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	// /health и /metrics без трассировки
	router.Get("/health", platformhealth.Handler(2*time.Second, checks))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Group(func(r chi.Router) {
		r.Use(platformobservability.HTTPMiddleware("inventory", logger))

		r.Post("/reserve", handler.PostReserve)
		r.Post("/release", handler.PostRelease)
		r.Get("/products/{id}", handler.GetProduct)
		r.Get("/stock/{product_id}/{size_id}", handler.GetStock)
	})

	return router
}
