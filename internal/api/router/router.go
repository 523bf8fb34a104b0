// Package router wires the HTTP surface: global middleware, public
// endpoints, and the tenant-scoped API group.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/audit"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	"github.com/wolfman30/clinic-scheduler/internal/catalog"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SchedulingHandler   *scheduling.Handler
	AvailabilityHandler *availability.Handler
	CatalogHandler      *catalog.Handler
	AuditHandler        *audit.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimitRPS        float64
	RateLimitBurst      int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Tenant-scoped API
	r.Group(func(api chi.Router) {
		api.Use(RequireTenant)
		if cfg.SchedulingHandler != nil {
			cfg.SchedulingHandler.Routes(api)
		}
		if cfg.AvailabilityHandler != nil {
			cfg.AvailabilityHandler.Routes(api)
		}
		if cfg.CatalogHandler != nil {
			cfg.CatalogHandler.Routes(api)
		}
		if cfg.AuditHandler != nil {
			cfg.AuditHandler.Routes(api)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
