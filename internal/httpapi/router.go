package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/health"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
	"github.com/noah-isme/toko-fulfillment/internal/ratelimit"
	"github.com/noah-isme/toko-fulfillment/internal/security"
)

// RouterConfig wires handlers and middleware into the API router.
type RouterConfig struct {
	Handler        *Handler
	Health         health.Handler
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	MetricsHandler http.Handler
	Tracing        bool
	CORSOrigins    []string
	BodyLimit      int64
	RateLimit      ratelimit.Handler
	Idem           common.Idem
}

// NewRouter builds the chi router serving the public API.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	if h == nil {
		h = &Handler{Logger: cfg.Logger}
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: cfg.HTTPMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: true}.Middleware)

	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(cfg.RateLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimit}.Middleware)

		v.Post("/pricing/quote", h.PricingQuote)
		v.Post("/pricing/eligible", h.PricingEligible)
		v.Post("/allocations/plan", h.AllocationPlan)

		v.Route("/wallets/{userID}", func(wr chi.Router) {
			wr.Post("/quote", h.WalletQuote)
			wr.With(cfg.Idem.Middleware).Post("/instruments/{instrumentID}/settle", h.WalletSettle)
		})

		v.Route("/orders/{orderID}", func(o chi.Router) {
			o.Get("/fulfillment-plan", h.FulfillmentPlan)
			o.With(cfg.Idem.Middleware).Post("/fulfillment", h.FulfillmentCommit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, common.CodeMethodNotAllowed, "method not allowed", nil)
	})
	return r
}
