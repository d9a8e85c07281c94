package handler

import (
	"net/http"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/observability"
	"github.com/graminate/finance-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterConfig holds the HTTP edge settings.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// HealthProbe reports the state of one dependency for /healthz.
type HealthProbe func() domain.ServiceHealth

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	svc *service.FinancialService,
	verifier *service.TokenVerifier,
	cfg RouterConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
	probes ...HealthProbe,
) http.Handler {
	r := chi.NewRouter()
	qv := newQueryValidator()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(probes))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)

		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))
		r.Get("/categories/{subType}", categoriesHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(verifier, logger))

			r.Get("/users/{userId}/profile", getProfileHandler(svc, logger))
			r.Get("/users/{userId}/financials/{subType}", getReportHandler(svc, qv, logger))
			r.Get("/users/{userId}/financials/{subType}/daily", getDailyHandler(svc, qv, logger))
			r.Get("/users/{userId}/financials/{subType}/monthly", getMonthlyHandler(svc, qv, logger))
		})
	})

	return r
}

// ============================================================
// Metrics & Health
// ============================================================

func healthzHandler(probes []HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}
		for _, probe := range probes {
			s := probe()
			s.LastChecked = now
			services = append(services, s)
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPipelineSnapshot())
	}
}

// ============================================================
// Probes
// ============================================================

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
