package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadimchubok/online-cinema-backend/api/routes"
	"github.com/vadimchubok/online-cinema-backend/internal/auth"
	"github.com/vadimchubok/online-cinema-backend/internal/cart"
	"github.com/vadimchubok/online-cinema-backend/internal/interactions"
	"github.com/vadimchubok/online-cinema-backend/internal/movies"
	"github.com/vadimchubok/online-cinema-backend/internal/orders"
	"github.com/vadimchubok/online-cinema-backend/internal/payments"
	stripewebhook "github.com/vadimchubok/online-cinema-backend/internal/webhooks/stripe"
	"github.com/vadimchubok/online-cinema-backend/pkg/auth/session"
	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/db"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/metrics"
	"github.com/vadimchubok/online-cinema-backend/pkg/migrate"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/redis"
	"github.com/vadimchubok/online-cinema-backend/pkg/stripe"
)

const (
	webhookGuardTTL   = 72 * time.Hour
	webhookGuardScope = "stripe"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	gateway, err := payments.NewStripeGateway(stripeClient, cfg.Stripe)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		Repo:     auth.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxService,
		Sessions: sessionManager,
		Redis:    redisClient,
		JWT:      cfg.JWT,
		Password: cfg.Password,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	movieRepo := movies.NewRepository(dbClient.DB())
	movieService, err := movies.NewService(movieRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create movie service", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())

	cartService, err := cart.NewService(cartRepo, movieRepo, orderRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Cart:     cartRepo,
		Movies:   movieRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Gateway:  gateway,
		Payments: cfg.Payments,
		Logger:   logg,
		Metrics:  paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	interactionService, err := interactions.NewService(interactions.ServiceParams{
		Repo:   interactions.NewRepository(dbClient.DB()),
		Movies: movieRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create interactions service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders: orderService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, webhookGuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	router := routes.NewRouter(routes.Deps{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		Sessions:     sessionManager,
		Auth:         authService,
		Movies:       movieService,
		Cart:         cartService,
		Orders:       orderService,
		Interactions: interactionService,
		StripeClient: stripeClient,
		Webhooks:     webhookService,
		WebhookGuard: webhookGuard,
		Metrics:      registry,
	})

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}
}
