package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/config"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
	customMW "github.com/pesaflow/mpesa-gateway/internal/middleware"
	"github.com/pesaflow/mpesa-gateway/internal/repository/postgres"
	"github.com/pesaflow/mpesa-gateway/internal/service"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	TransactionRepo transaction.Repository
	PaymentService  *service.PaymentService
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
	JWTSecret       string
	RateLimitPerMin int
	IdempotencyTTL  time.Duration
	Logger          zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	r.Use(customMW.SecurityHeaders())

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.PaymentService, deps.TransactionRepo)
	callbackH := NewCallbackController(deps.PaymentService, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Daraja posts settlement results here. The route stays outside /api/v1:
	// the provider cannot present merchant credentials, and the ack contract
	// is enforced inside the handler, not by middleware.
	r.Post("/callbacks/mpesa", callbackH.HandleMpesaCallback)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.JWTSecret != "" {
			r.Use(customMW.RequireAuth(deps.JWTSecret))
		}
		if deps.RateLimitPerMin > 0 {
			r.Use(customMW.RateLimit(deps.RateLimitPerMin))
		}

		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo, deps.IdempotencyTTL)

		r.With(idempotencyMW).Post("/payments", paymentH.CreatePayment)
		r.Get("/payments/{checkoutRequestID}", paymentH.GetStatus)
		r.Get("/payments", paymentH.ListPayments)
	})

	return r
}
