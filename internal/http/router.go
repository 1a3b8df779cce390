package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/middlewares"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

type Config struct {
	Endpoint      string
	AuthSecretKey string
}

// Router exposes the operator API: failed orders are queryable and explicitly
// re-drivable; no order is ever deleted through this surface.
type Router struct {
	config          Config
	recordService   models.RecordService
	pipelineService models.PipelineControlService
}

func New(
	config Config,
	recordService models.RecordService,
	pipelineService models.PipelineControlService,
) *Router {
	return &Router{
		config,
		recordService,
		pipelineService,
	}
}

func (router *Router) get() chi.Router {
	r := chi.NewRouter()

	r.Use(
		middlewares.ServiceInjectorMiddleware(
			router.recordService,
			router.pipelineService,
		),
		logger.RequestLogger,
		middlewares.AuthMiddleware(router.config.AuthSecretKey).WithExcludedPaths(
			"/api/health",
		).Middleware,
	)

	r.Get("/api/health", Health)

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", GetOrders)
		r.Get("/{orderID}", GetOrder)
		r.Get("/{orderID}/history", GetOrderHistory)

		r.Post("/{orderID}/redrive", RedriveOrder)
		r.Post("/{orderID}/cancel", CancelOrder)
		r.Post("/{orderID}/resume", ResumeOrder)
	})

	return r
}

func (router *Router) Run() {
	log.Fatal(http.ListenAndServe(router.config.Endpoint, router.get()))
}
