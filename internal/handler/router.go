package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Services are the application services behind the API. A nil Verifier
// disables every authenticated route.
type Services struct {
	Auth      *service.AuthService
	Ledger    *service.Ledger
	Views     *service.Views
	Extractor *service.Extractor
	Advisor   *service.Advisor
	Greeting  *service.GreetingService
	Verifier  port.TokenVerifier
}

// HealthCheck is one dependency probed by /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options tune the router.
type Options struct {
	CORSOrigin    string
	AuthRateLimit float64
	AuthRateBurst int
	// StreamHeartbeat is the interval of SSE keep-alive comments.
	StreamHeartbeat time.Duration
	// StreamsDone, when closed, ends every open event stream.
	StreamsDone  <-chan struct{}
	HealthChecks []HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	if opts.StreamHeartbeat <= 0 {
		opts.StreamHeartbeat = 25 * time.Second
	}
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit, opts.AuthRateBurst = 5, 10
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(opts.CORSOrigin))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(opts.HealthChecks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc.Verifier == nil || svc.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "Autenticação não configurada.")
			}))
			return
		}

		// =============================================
		// Autenticação (public, rate limited)
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Use(RateLimitMiddleware(opts.AuthRateLimit, opts.AuthRateBurst, logger))
			r.Post("/signup", signUpHandler(svc.Auth, logger))
			r.Post("/login", loginHandler(svc.Auth, logger))
			r.Post("/refresh", refreshHandler(svc.Auth, logger))
			r.Post("/google", googleSignInHandler(svc.Auth, logger))
			r.Get("/google/login", googleLoginHandler(svc.Auth, logger))
			r.Get("/google/callback", googleCallbackHandler(svc.Auth, logger))

			r.With(AuthMiddleware(svc.Verifier, logger)).Post("/logout", logoutHandler(svc.Auth, logger))
		})

		// =============================================
		// Protected routes
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svc.Verifier, logger))

			// Conta, premium e dados
			r.Get("/me", profileHandler(svc.Auth, logger))
			r.Put("/me/premium", setPremiumHandler(svc.Ledger, logger))
			r.Delete("/me/data", resetDataHandler(svc.Ledger, logger))

			// Estado completo e painel
			r.Get("/snapshot", snapshotHandler(svc.Views, logger))
			r.Get("/dashboard", dashboardHandler(svc.Views, logger))
			r.Get("/stream", streamHandler(svc.Views, opts.StreamHeartbeat, opts.StreamsDone, logger))

			// Transações
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", listTransactionsHandler(svc.Views, logger))
				r.Post("/", createTransactionHandler(svc.Ledger, logger))
				r.Post("/text", createTransactionFromTextHandler(svc.Ledger, logger))
				r.Patch("/{id}", updateTransactionHandler(svc.Ledger, logger))
				r.Put("/{id}", updateTransactionHandler(svc.Ledger, logger))
				r.Delete("/{id}", deleteTransactionHandler(svc.Ledger, logger))
			})

			// Metas
			r.Route("/goals", func(r chi.Router) {
				r.Get("/", listGoalsHandler(svc.Views, logger))
				r.Post("/", createGoalHandler(svc.Ledger, logger))
				r.Put("/{id}", updateGoalHandler(svc.Ledger, logger))
				r.Delete("/{id}", deleteGoalHandler(svc.Ledger, logger))
				r.Post("/{id}/contributions", contributeHandler(svc.Ledger, logger))
			})

			// Contas a pagar
			r.Route("/bills", func(r chi.Router) {
				r.Get("/", listBillsHandler(svc.Views, logger))
				r.Post("/", createBillHandler(svc.Ledger, logger))
				r.Get("/reminders", remindersHandler(svc.Views, logger))
				r.Post("/{id}/pay", payBillHandler(svc.Ledger, logger))
				r.Delete("/{id}", deleteBillHandler(svc.Ledger, logger))
			})

			// Lista de compras
			r.Route("/shopping-items", func(r chi.Router) {
				r.Get("/", listShoppingItemsHandler(svc.Views, logger))
				r.Post("/", createShoppingItemHandler(svc.Ledger, logger))
				r.Post("/{id}/toggle", toggleShoppingItemHandler(svc.Ledger, logger))
				r.Delete("/{id}", deleteShoppingItemHandler(svc.Ledger, logger))
			})

			// Orçamentos
			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", listBudgetsHandler(svc.Views, logger))
				r.Post("/", createBudgetHandler(svc.Ledger, logger))
				r.Get("/status", budgetStatusHandler(svc.Views, logger))
				r.Get("/categories", budgetCategoriesHandler(svc.Views, logger))
				r.Put("/{id}", updateBudgetHandler(svc.Ledger, logger))
				r.Delete("/{id}", deleteBudgetHandler(svc.Ledger, logger))
			})

			// IA
			r.Post("/ai/extract", extractHandler(svc.Extractor, logger))
			r.Post("/ai/insights", insightsHandler(svc.Advisor, logger))
			r.Post("/ai/shopping-analysis", shoppingAnalysisHandler(svc.Advisor, logger))

			r.Post("/greeting", greetingHandler(svc.Greeting, logger))
			r.Get("/metrics/model", modelMetricsHandler(metrics))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readyzHandler probes every dependency. Any failure makes the service
// degraded (503) so that load balancers stop routing to it.
func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := domain.HealthStatus{Status: "healthy", Services: make([]domain.ServiceHealth, 0, len(checks))}
		for _, c := range checks {
			start := time.Now()
			err := c.Check(ctx)
			health := domain.ServiceHealth{Name: c.Name, Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				logger.Warn("readiness check failed", zap.String("dependency", c.Name), zap.Error(err))
				health.Status = "unhealthy"
				status.Status = "degraded"
			}
			status.Services = append(status.Services, health)
		}

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func modelMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetModelSnapshot())
	}
}
