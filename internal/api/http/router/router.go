package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/ttldump/internal/api/http/handler"
	"github.com/dtroode/ttldump/internal/api/http/middleware"
	"github.com/dtroode/ttldump/internal/logger"
)

// Router wires the dump API onto a chi mux.
type Router struct {
	dumpService    handler.DumpService
	sweeper        handler.Sweeper
	maxUploadBytes int64
	logger         *logger.Logger
}

// New creates new Router instance.
func New(
	dumpService handler.DumpService,
	sweeper handler.Sweeper,
	maxUploadBytes int64,
	logger *logger.Logger,
) *Router {
	return &Router{
		dumpService:    dumpService,
		sweeper:        sweeper,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Register builds the HTTP handler with request logging, metrics and panic recovery.
func (r *Router) Register() http.Handler {
	mux := r.newMux()
	r.registerRoutes(mux)

	return mux
}

// newMux returns a mux carrying the middleware chain. Metrics wraps Recoverer so
// a request that panics is still counted, as a 500.
func (r *Router) newMux() *chi.Mux {
	logging := middleware.NewLogging(r.logger.Component("http"))

	mux := chi.NewRouter()
	mux.Use(middleware.Metrics)
	mux.Use(chimiddleware.Recoverer)
	mux.Use(logging.Handle)

	return mux
}

func (r *Router) registerRoutes(mux chi.Router) {
	mux.Get("/health/live", handler.Live)
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	mux.Route("/api", func(api chi.Router) {
		r.registerDumpRoutes(api)
		r.registerCleanupRoutes(api)
	})
}

func (r *Router) registerDumpRoutes(api chi.Router) {
	dumpHandler := handler.NewDump(r.dumpService, r.maxUploadBytes, r.logger)

	api.Get("/dump", dumpHandler.List)
	api.Post("/dump", dumpHandler.Create)
	api.Get("/dump/{id}", dumpHandler.Get)
	api.Get("/dump/{id}/content", dumpHandler.Content)
	api.Post("/decode", dumpHandler.Decode)
}

func (r *Router) registerCleanupRoutes(api chi.Router) {
	cleanupHandler := handler.NewCleanup(r.sweeper, r.logger)

	api.Get("/cron/cleanup", cleanupHandler.Run)
	api.Post("/cron/cleanup", cleanupHandler.Run)
}
