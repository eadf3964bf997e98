package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicflow/clinicflow/libs/auth"
	"github.com/clinicflow/clinicflow/libs/config"
	"github.com/clinicflow/clinicflow/libs/db"
	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/libs/kafkax"
	otelx "github.com/clinicflow/clinicflow/libs/otel"
	"github.com/clinicflow/clinicflow/libs/runtime"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/billing"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/booking"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/handlers"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/outbox"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	billingProvider, err := billing.NewProvider(config.String("BILLING_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("billing provider init failed; relying on outbox only", "err", err)
		billingProvider = nil
	}

	svc := booking.NewService(repo, outboxRepo, billingProvider, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var publicRateLimit httpx.Middleware
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(redisOpts)
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("PUBLIC_RATE_LIMIT", 60), time.Minute, service)
		publicRateLimit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		publicRateLimit = httpx.NewRateLimiter(config.Int("PUBLIC_RATE_LIMIT", 60), time.Minute).Middleware()
	}

	schedulingHandler := handlers.NewSchedulingHandler(repo, svc, logger)

	jwtSecret := config.String("JWT_SECRET", "")
	authed := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth.Middleware(jwtSecret))
	}
	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, publicRateLimit)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/public/slots", public(schedulingHandler.PublicSlots))
	mux.Handle("/api/v1/public/book", public(schedulingHandler.PublicBook))
	mux.Handle("/api/v1/appointments", authed(schedulingHandler.List))
	mux.Handle("/api/v1/appointments/book", authed(schedulingHandler.Book))
	mux.Handle("/api/v1/appointments/reschedule", authed(schedulingHandler.Reschedule))
	mux.Handle("/api/v1/appointments/status", authed(schedulingHandler.Transition))
	mux.Handle("/api/v1/appointments/backfill", authed(schedulingHandler.Backfill))
	mux.Handle("/api/v1/waitlist", authed(schedulingHandler.Waitlist))
	mux.Handle("/api/v1/providers/", authed(schedulingHandler.Availability))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
