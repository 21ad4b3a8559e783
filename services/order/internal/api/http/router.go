package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/storefront/platform/health/http"
	platformobservability "github.com/shestoi/storefront/platform/observability"
	"github.com/shestoi/storefront/services/order/internal/api/http/middleware"
)

// NewRouter создаёт и настраивает HTTP роутер Order Service.
// checks — проверки зависимостей для /health (Postgres, Redis).
func NewRouter(handler *Handler, checks map[string]platformhealth.Check, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	// Health без трассировки и без X-User-Id
	router.Get("/health", platformhealth.Handler(2*time.Second, checks))

	// /orders* требуют X-User-Id (middleware возвращает 401 при отсутствии)
	router.Route("/orders", func(r chi.Router) {
		r.Use(platformobservability.HTTPMiddleware("order", logger))
		r.Use(middleware.RequireUserID)

		r.Post("/create", handler.PostCreate)
		r.Get("/", handler.GetList)
		r.Get("/{id}", handler.GetByID)
	})

	return router
}
