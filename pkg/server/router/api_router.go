package router

import (
	handlers "github.com/eventwish/fraudguard/pkg/handlers/http"
	"github.com/eventwish/fraudguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type apiRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewAPIRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &apiRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *apiRouter) BuildRoutes(router *fiber.App) error {
	if r.handlerTransport == nil {
		return ErrInvalidHandlerTransport
	}
	h := r.handlerTransport

	router.Get("/version", h.GetVersionHandler.Handle)

	v1 := router.Group("/v1")
	{
		if r.middlewareTransport != nil && len(r.middlewareTransport.Middlewares) > 0 {
			v1.Use(r.middlewareTransport.GetMiddlewares()...)
		}

		v1.Post("/events", h.IngestEventHandler.Handle)

		dashboard := v1.Group("/dashboard")
		{
			dashboard.Get("", h.GetDashboardHandler.Handle)
			dashboard.Post("/refresh", h.RefreshDashboardHandler.Handle)
		}

		v1.Get("/reputation/:entity_type/:entity_id", h.GetReputationHandler.Handle)
		v1.Get("/traffic/:entity_type/:entity_id", h.AnalyzeTrafficHandler.Handle)
		v1.Get("/activities", h.ListActivitiesHandler.Handle)

		caches := v1.Group("/cache")
		{
			caches.Get("/stats", h.GetCacheStatsHandler.Handle)
			caches.Post("/:namespace/invalidate", h.InvalidateCacheHandler.Handle)
		}
	}
	return nil
}
