package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nutriplano/internal/api/v1/handler"
	"nutriplano/internal/billing"
	"nutriplano/internal/config"
	"nutriplano/internal/middleware"
	"nutriplano/internal/pubsub"
	"nutriplano/internal/repository"
	"nutriplano/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the HTTP surface. The returned cleanup closes the database pool
// and the Pub/Sub client.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Initializing router")

	// 1. Open DB pool
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize Pub/Sub publisher (optional)
	var publisher pubsub.Publisher
	var pubsubClient *pubsub.PubSubPublisher
	if cfg.EntitlementTopic != "" {
		pubsubClient, err = pubsub.NewPublisher(ctx, cfg.GCPProjectID, cfg.PubSubEmulatorHost)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("create Pub/Sub publisher: %w", err)
		}
		publisher = pubsubClient
		logger.Info().Str("topic", cfg.EntitlementTopic).Msg("Entitlement change notifications enabled")
	}

	cleanup := func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close Pub/Sub client")
			}
		}
		pool.Close()
	}

	// 3. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Initialize repositories & services & handlers
	profileRepo := repository.NewProfileRepo(pool)
	gateway := billing.NewStripeGateway(cfg.StripeSecretKey)

	entitlementSvc := service.NewEntitlementService(profileRepo, publisher, cfg.EntitlementTopic, cfg.EntitlementOrderingGuard, logger)
	checkoutSvc := service.NewCheckoutService(cfg, profileRepo, gateway, logger)

	subscriptionHandler := handler.NewSubscriptionHandler(checkoutSvc, entitlementSvc, validate, logger)
	webhookHandler := handler.NewWebhookHandler(cfg.StripeWebhookSecret, entitlementSvc, logger)

	// 5. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	// 6. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	webhookHandler.RegisterRoutes(apiV1Mux)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// 7. Apply CORS middleware. Stripe calls the webhook server to server, so
	// CORS only matters for the browser-facing endpoints.
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		AllowCredentials: false,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), cleanup, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DBConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	// For non-development environments that use a transaction pooler like pgbouncer,
	// we must use the simple query protocol to avoid issues with server-side prepared statements.
	if !cfg.IsDevelopment() {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
