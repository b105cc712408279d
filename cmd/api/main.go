package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/chainfund-payouts/internal/auth"
	"github.com/josh-kwaku/chainfund-payouts/internal/config"
	"github.com/josh-kwaku/chainfund-payouts/internal/fees"
	"github.com/josh-kwaku/chainfund-payouts/internal/fx"
	"github.com/josh-kwaku/chainfund-payouts/internal/handler"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/middleware"
	"github.com/josh-kwaku/chainfund-payouts/internal/notify"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
	"github.com/josh-kwaku/chainfund-payouts/internal/ratelimit"
	"github.com/josh-kwaku/chainfund-payouts/internal/repository"
	"github.com/josh-kwaku/chainfund-payouts/internal/scheduler"
	"github.com/josh-kwaku/chainfund-payouts/internal/service"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

const (
	reconcileRunTimeout = 10 * time.Minute
	idempotencyTTL      = 24 * time.Hour
)

type eventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("chainfund-payouts", cfg.LogLevel, cfg.AppEnv)

	slog.Info("connecting to database")
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	sqlDB, err := repository.OpenPostgres(startCtx, cfg.DatabaseURL, cfg.DB, time.Second)
	cancelStart()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	db := repository.NewDB(sqlDB)

	rates, err := fx.NewRateTable(cfg.ReferenceCurrency, cfg.DefaultCurrency, cfg.FXRates)
	if err != nil {
		slog.Error("invalid FX rate table", "error", err)
		os.Exit(1)
	}

	if cfg.PaystackSecretKey == "" {
		slog.Warn("PAYSTACK_SECRET_KEY not set; paystack calls and webhooks will fail")
	}
	if cfg.StripeSecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY not set; stripe calls will fail")
	}
	router := provider.NewRouter(
		provider.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.ProviderTimeout),
		provider.NewStripe(provider.StripeConfig{
			BaseURL:          cfg.StripeBaseURL,
			SecretKey:        cfg.StripeSecretKey,
			WebhookSecret:    cfg.StripeWebhookSecret,
			ConnectedAccount: cfg.StripeConnectedAccount,
			BankCountry:      cfg.StripeBankCountry,
			Timeout:          cfg.ProviderTimeout,
		}),
	)

	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	events := connectBroker(cfg.AMQPURL)
	defer events.Close()

	dispatcher := notify.NewDispatcher(
		notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
		events,
	)

	payoutSvc := payout.NewService(
		repository.NewPayoutRepository(sqlDB),
		repository.NewAuditRepository(sqlDB),
		repository.NewSubjectRepository(sqlDB),
		repository.NewRecipientRepository(sqlDB),
		db,
		router,
		fees.NewCalculator(fees.DefaultSchedules(), rates),
		rates,
		payout.Config{
			MinPayoutReference: cfg.MinPayoutReference,
			StaleClaimAfter:    cfg.DispatchClaimTimeout,
		},
	)

	webhookProcessor := service.NewWebhookProcessor(
		repository.NewWebhookEventRepository(sqlDB),
		payoutSvc,
		router,
		dispatcher,
		logger.With("component", "webhook_processor"),
		cfg.WebhookRetryInterval,
		cfg.WebhookMaxAttempts,
	)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go webhookProcessor.Start(bgCtx)

	var cron *scheduler.Scheduler
	if cfg.ReconcileEnabled {
		cron = scheduler.New(payoutSvc, dispatcher, logger.With("component", "scheduler"), cfg.ReconcileSchedule, reconcileRunTimeout)
		if err := cron.Start(); err != nil {
			slog.Error("failed to start reconciliation scheduler", "error", err)
			os.Exit(1)
		}
	}

	health := handler.NewHealthHandler(db, nil)
	var limiter *ratelimit.Limiter
	idempotency := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		health = handler.NewHealthHandler(db, handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		limiter = ratelimit.NewLimiter(redisClient, "payouts:rate_limit")
		idempotency = middleware.Idempotency(repository.NewIdempotencyStore(redisClient, "payouts:idempotency", idempotencyTTL))
	}

	payouts := handler.NewPayoutHandler(payoutSvc, dispatcher)
	webhooks := handler.NewWebhookHandler(router, webhookProcessor)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging, middleware.Recovery)

	r.Get("/health", health.Liveness)
	r.Get("/ready", health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/{provider}", webhooks.ReceiveProviderWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.With(
				middleware.Timeout(cfg.PayoutRequestTimeout),
				middleware.RateLimit(limiter, "payout_request", cfg.PayoutRateLimit, cfg.PayoutRateWindow),
				idempotency,
			).Post("/payout-requests", payouts.Create)
			r.Get("/payouts/{id}", payouts.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleAdmin))
				r.Get("/payouts/{id}/audit", payouts.Audit)
				r.Post("/admin/payouts/{id}/approve", payouts.Approve)
				r.Post("/admin/payouts/{id}/reject", payouts.Reject)
				r.With(middleware.Timeout(cfg.PayoutRequestTimeout)).Post("/admin/payouts/{id}/process", payouts.Process)
				r.Post("/admin/reconcile", payouts.Reconcile)
			})
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.PayoutRequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	stopBackground()
	if cron != nil {
		cron.Stop(ctx)
	}
	slog.Info("server stopped")
}

// connectRedis returns nil when Redis is not configured or unreachable; rate
// limiting and idempotent replay are then disabled.
func connectRedis(url string) *redis.Client {
	if strings.TrimSpace(url) == "" {
		slog.Warn("REDIS_URL not set; rate limiting and idempotency disabled")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("redis url parse failed; rate limiting and idempotency disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis ping failed; rate limiting and idempotency disabled", "error", err)
		client.Close()
		return nil
	}

	slog.Info("redis connected")
	return client
}

func connectBroker(url string) eventPublisher {
	if strings.TrimSpace(url) == "" {
		slog.Warn("AMQP_URL not set; payout events will not be published")
		return notify.NoopProducer{}
	}

	producer, err := notify.NewEventProducer(url)
	if err != nil {
		slog.Warn("rabbitmq unavailable; payout events will not be published", "error", err)
		return notify.NoopProducer{}
	}

	slog.Info("rabbitmq connected")
	return producer
}
