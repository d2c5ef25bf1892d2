package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcriptionsvc/internal/api/handlers"
	"github.com/nikhilbhutani/transcriptionsvc/internal/api/middleware"
	"github.com/nikhilbhutani/transcriptionsvc/internal/audit"
	"github.com/nikhilbhutani/transcriptionsvc/internal/auth"
	"github.com/nikhilbhutani/transcriptionsvc/internal/config"
	"github.com/nikhilbhutani/transcriptionsvc/internal/stats"
	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
)

// Deps are the long-lived collaborators built in main. DB, Redis, Runs and
// Counters may be nil.
type Deps struct {
	Config   *config.Config
	Version  string
	Service  handlers.TranscriptionService
	Pool     *worker.Pool
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Runs     *audit.Store
	Counters *stats.Counters
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover(cfg.Log.Debug))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health endpoints
	var db, rdb handlers.Pinger
	if rt.deps.DB != nil {
		db = rt.deps.DB
	}
	if rt.deps.Redis != nil {
		rdb = handlers.RedisPinger{Client: rt.deps.Redis}
	}
	health := handlers.NewHealthHandler(rt.deps.Version, db, rdb, rt.deps.Pool)
	r.Get("/", health.Root)
	r.Get("/health", health.Health)
	r.Get("/readyz", health.Readyz)

	var counters handlers.Snapshotter
	if rt.deps.Counters != nil {
		counters = rt.deps.Counters
	}
	var runs handlers.RunLister
	if rt.deps.Runs != nil {
		runs = rt.deps.Runs
	}

	r.Route("/v1", func(r chi.Router) {
		transcribeH := handlers.NewTranscribeHandler(rt.deps.Service, cfg.MaxFileSizeBytes())
		r.Post("/transcribe", transcribeH.Transcribe)
		r.Post("/transcribe/", transcribeH.Transcribe)

		statsH := handlers.NewStatsHandler(rt.deps.Pool, counters)
		r.Get("/stats", statsH.Stats)

		if cfg.Admin.JWTSecret != "" {
			adminH := handlers.NewAdminHandler(runs)
			jwtMW := auth.NewJWTMiddleware(cfg.Admin.JWTSecret)
			r.Route("/admin", func(r chi.Router) {
				r.Use(jwtMW.Authenticate)
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Get("/runs", adminH.Runs)
			})
		}
	})

	return r
}
