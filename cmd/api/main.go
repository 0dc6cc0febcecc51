package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pesaflow/mpesa-gateway/internal/bootstrap"
	"github.com/pesaflow/mpesa-gateway/internal/controller"
	"github.com/pesaflow/mpesa-gateway/internal/daraja"
	infraRedis "github.com/pesaflow/mpesa-gateway/internal/infrastructure/redis"
	"github.com/pesaflow/mpesa-gateway/internal/repository/postgres"
	"github.com/pesaflow/mpesa-gateway/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "mpesa-gateway-api", "mpesa_gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	correlations := infraRedis.NewCorrelationStore(app.Redis, app.Config.Redis.CorrelationTTL)

	// --- Daraja client ---
	darajaClient, err := daraja.NewClient(daraja.Config{
		BaseURL:        app.Config.Daraja.BaseURL,
		ConsumerKey:    app.Config.Daraja.ConsumerKey,
		ConsumerSecret: app.Config.Daraja.ConsumerSecret,
		ShortCode:      app.Config.Daraja.ShortCode,
		Passkey:        app.Config.Daraja.Passkey,
		CallbackURL:    app.Config.Daraja.CallbackURL,
		Timezone:       app.Config.Daraja.Timezone,
		Timeout:        app.Config.Daraja.Timeout,
	}, daraja.WithLogger(app.Logger))
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build Daraja client")
	}

	gateway := service.NewBreakerGateway(darajaClient, service.BreakerSettings{
		Threshold: app.Config.Daraja.CircuitBreakerThreshold,
		Timeout:   app.Config.Daraja.CircuitBreakerTimeout,
	}, app.Metrics)

	paymentService := service.NewPaymentService(
		transactionRepo,
		outboxRepo,
		correlations,
		txManager,
		gateway,
		app.Metrics,
		app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		TransactionRepo: transactionRepo,
		PaymentService:  paymentService,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
		JWTSecret:       app.Config.Auth.JWTSecret,
		RateLimitPerMin: app.Config.Server.RateLimitPerMin,
		IdempotencyTTL:  app.Config.Worker.IdempotencyTTL,
		Logger:          app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
