package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/boddenberg/finanzen-bfa-go/internal/config"
	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/handler"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/cache"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/client"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/firebase"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/gemini"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/identity"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// unconfiguredModel answers every request with an external-service error so
// that the rest of the API keeps working without a Gemini key.
type unconfiguredModel struct{}

func (unconfiguredModel) Generate(context.Context, *domain.ModelRequest) (*domain.ModelResponse, error) {
	return nil, &domain.ErrExternalService{Service: "gemini", Err: errors.New("gemini.apikey is not set")}
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	path := os.Getenv("FINANZEN_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	loc := cfg.Location()
	logger.Info("configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.String("timezone", loc.String()),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.String("gemini_model", cfg.Gemini.Model),
		zap.Bool("google_oauth", cfg.GoogleOAuthEnabled()),
		zap.Duration("http_timeout", cfg.HTTP.Timeout),
		zap.Duration("session_ttl", cfg.Session.TTL),
		zap.Int("max_retries", cfg.Resilience.MaxRetries),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.Resilience.MaxRetries,
		InitialBackoff: cfg.Resilience.InitialBackoff,
		MaxConcurrency: cfg.Resilience.MaxConcurrency,
	}
	modelCfg := resilienceCfg
	modelCfg.MaxRetries = cfg.Resilience.ModelMaxRetries

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	var checks []handler.HealthCheck

	// --- Store ---
	var store port.Store
	switch cfg.Store.Backend {
	case config.BackendFirebase:
		dbHTTP := httpClient
		secret := cfg.Firebase.DatabaseSecret
		if cfg.Firebase.CredentialsFile != "" {
			dbHTTP, err = firebase.NewAuthorizedHTTPClient(ctx, httpClient, cfg.Firebase.CredentialsFile)
			if err != nil {
				logger.Fatal("failed to load firebase credentials", zap.Error(err))
			}
			secret = ""
		}
		dbClient := firebase.NewClient(dbHTTP, cfg.Firebase.DatabaseURL, secret,
			resilience.NewCircuitBreaker("firebase-database", logger), resilienceCfg, logger)
		fbStore := firebase.NewStore(dbClient, cfg.Firebase.MaxStreams, logger)
		store = fbStore
		checks = append(checks, handler.HealthCheck{Name: "firebase-database", Check: fbStore.Ping})
		logger.Info("using Firebase Realtime Database", zap.String("database_url", cfg.Firebase.DatabaseURL))
	default:
		store = memstore.New(logger)
		logger.Warn("using in-memory store, data is lost on restart")
	}

	// --- Identity ---
	var provider port.IdentityProvider
	var verifier port.TokenVerifier
	var revoker port.SessionRevoker
	switch cfg.Auth.Mode {
	case config.AuthFirebase:
		provider = firebase.NewIdentity(httpClient, cfg.Firebase.IdentityURL, cfg.Firebase.SecureTokenURL,
			cfg.Firebase.APIKey, cfg.Google.RedirectURL,
			resilience.NewCircuitBreaker("firebase-identity", logger), resilienceCfg, logger)
		certs := cache.New[map[string]*rsa.PublicKey](cfg.Session.CertCacheTTL)
		defer certs.Close()
		verifier = firebase.NewTokenVerifier(httpClient, cfg.Firebase.CertsURL, cfg.Firebase.ProjectID, certs, logger)
		logger.Info("using Firebase Authentication", zap.String("project_id", cfg.Firebase.ProjectID))
	default:
		local := identity.NewLocal(identity.Config{
			Secret:     cfg.Auth.JWTSecret,
			AccessTTL:  cfg.Auth.AccessTTL,
			RefreshTTL: cfg.Auth.RefreshTTL,
		}, logger)
		provider, verifier, revoker = local, local, local
		logger.Warn("using local identity provider, accounts are lost on restart")
	}

	// --- Language model ---
	var model port.ModelCaller = unconfiguredModel{}
	if cfg.Gemini.APIKey != "" {
		genaiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			logger.Fatal("failed to create gemini client", zap.Error(err))
		}
		model = gemini.NewCaller(genaiClient, cfg.Gemini.Model,
			resilience.NewCircuitBreaker("gemini", logger), modelCfg, logger)
	} else {
		logger.Warn("gemini.apikey not set, AI features unavailable")
	}

	greeter := client.NewGreetingClient(httpClient, cfg.Greeting.URL,
		resilience.NewCircuitBreaker("greeting", logger), resilienceCfg)

	// --- Services ---
	clock := service.SystemClock{}
	sessions := service.NewSessions(store, cfg.Session.TTL, cfg.Session.CleanupInterval, loc, metrics, logger)
	extractor := service.NewExtractor(model, metrics, logger)

	var oauthCfg *oauth2.Config
	if cfg.GoogleOAuthEnabled() {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	states := cache.New[string](10 * time.Minute)
	defer states.Close()

	svc := handler.Services{
		Auth:      service.NewAuthService(provider, revoker, sessions, oauthCfg, states, logger),
		Ledger:    service.NewLedger(store, sessions, extractor, clock, loc, logger),
		Views:     service.NewViews(sessions, clock, loc, logger),
		Extractor: extractor,
		Advisor:   service.NewAdvisor(model, sessions, metrics, logger),
		Greeting:  service.NewGreetingService(greeter, logger),
		Verifier:  verifier,
	}

	// --- Router ---
	streamsDone := make(chan struct{})
	router := handler.NewRouter(svc, handler.Options{
		CORSOrigin:    cfg.Server.CORSOrigin,
		AuthRateLimit: cfg.Auth.RateLimit,
		AuthRateBurst: cfg.Auth.RateBurst,
		StreamsDone:   streamsDone,
		HealthChecks:  checks,
	}, metrics, logger)

	// --- Server ---
	// WriteTimeout bounds ordinary responses; /v1/stream lifts it per request.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Event streams never finish on their own.
	close(streamsDone)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	sessions.CloseAll()
	logger.Info("server stopped")
}
