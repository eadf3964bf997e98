package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicflow/clinicflow/libs/auth"
	"github.com/clinicflow/clinicflow/libs/config"
	"github.com/clinicflow/clinicflow/libs/db"
	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/libs/kafkax"
	otelx "github.com/clinicflow/clinicflow/libs/otel"
	"github.com/clinicflow/clinicflow/libs/runtime"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/consumer"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/handlers"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/inbox"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/invoices"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "billing-service")
	port, err := config.Port("PORT", "8085")
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
	svc := invoices.NewService(repo)
	inboxRepo := inbox.NewRepository(pool)

	// Completed appointments are the invoice trigger. The consumer is
	// idempotent twice over: inbox dedupe on event id plus the one-invoice-
	// per-appointment constraint.
	completedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "billing-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "scheduling.appointment.completed.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			ClinicID      string `json:"clinic_id"`
			PatientID     string `json:"patient_id"`
			ServiceID     string `json:"service_id"`
			EstimateCents *int64 `json:"estimate_cents"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || payload.ClinicID == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		inv, err := svc.Ensure(ctx, invoices.EnsureRequest{
			ClinicID:      payload.ClinicID,
			AppointmentID: payload.AppointmentID,
			PatientID:     payload.PatientID,
			ServiceID:     payload.ServiceID,
			EstimateCents: payload.EstimateCents,
		})
		if err != nil {
			return err
		}
		logger.Info("invoice ensured",
			"invoice_id", inv.ID,
			"appointment_id", inv.AppointmentID,
			"amount_cents", inv.AmountCents,
			"currency", inv.Currency,
		)
		return nil
	})
	go completedConsumer.Run(ctx)

	if err := startGrpcServer(ctx, logger, svc); err != nil {
		logger.Error("grpc server start failed", "err", err)
	}

	billingHandler := handlers.New(repo, svc, logger, handlers.Config{
		StripeSecretKey:               config.String("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
		CheckoutSuccessURL:            config.String("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:             config.String("CHECKOUT_CANCEL_URL", ""),
	})

	jwtSecret := config.String("JWT_SECRET", "")
	authed := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth.Middleware(jwtSecret))
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/api/v1/invoices", authed(billingHandler.List))
	mux.Handle("/api/v1/invoices/get", authed(billingHandler.Get))
	mux.Handle("/api/v1/invoices/pay", authed(billingHandler.Pay))
	// Webhooks authenticate themselves (signature / event dedupe), not JWT.
	mux.HandleFunc("/api/v1/webhooks/stripe", billingHandler.StripeWebhook)
	mux.HandleFunc("/api/v1/webhooks/local", billingHandler.LocalWebhook)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "billing")
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
