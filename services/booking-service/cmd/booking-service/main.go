package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer be.close()

	var sources []policy.ProfileSource
	if path := config.String("BUSINESS_POLICY_FILE", ""); path != "" {
		fileSource, err := policy.LoadFile(path)
		if err != nil {
			logger.Error("business policy file unreadable", "path", path, "err", err)
			panic(err)
		}
		sources = append(sources, fileSource)
	}
	sources = append(sources, be.store)
	profiles := policy.NewLayered(logger, policy.Defaults{
		Timezone: config.String("DEFAULT_TIMEZONE", "UTC"),
		SlotStep: config.Minutes("DEFAULT_SLOT_STEP_MINUTES", 30*time.Minute),
		MinLead:  config.Minutes("DEFAULT_MIN_LEAD_MINUTES", 0),
	}, sources...)

	engine := availability.NewAggregator(be.store, profiles,
		availability.WithMetrics(m),
		availability.WithParallelism(config.Int("AVAILABILITY_PARALLELISM", 8)),
	)
	committer := reservation.NewCommitter(be.store, profiles, logger, reservation.WithMetrics(m))

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: be.store.Ping}}

	brokers := config.String("KAFKA_BROKERS", "")
	if list := kafkax.SplitBrokers(brokers); len(list) > 0 {
		writer := kafkax.NewWriter(list)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(be.outbox, writer, logger, m, outbox.PublisherConfig{
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)

		reader := kafkax.NewReader(kafkax.ReaderConfig{
			Brokers: list,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   config.String("KAFKA_DEPOSIT_TOPIC", consumer.TopicDepositPaid),
		})
		deposits := consumer.New(logger, reader, be.inbox, consumer.DepositPaidHandler(committer, logger), m, consumer.Config{})
		go deposits.Run(ctx)

		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
	}

	verifier, err := newVerifier(logger)
	if err != nil {
		logger.Error("jwks fetch failed", "err", err)
		panic(err)
	}
	defer verifier.Close()

	limiter, redisCheck := newRateLimiter(logger)
	if redisCheck != nil {
		readyChecks = append(readyChecks, *redisCheck)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", metrics.Handler(reg))
	handlers.NewBookingHandler(engine, committer, be.store, logger).
		Register(mux, auth.RequireRole(verifier, "owner", "admin", "staff"))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		auth.Middleware(verifier, false),
		httpx.WithAccessLog(logger, auth.LogAttrs),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,Idempotency-Key,X-Request-Id"),
			ExposedHeaders:   []string{httpx.RequestIDHeader, "Idempotent-Replayed", "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           10 * time.Minute,
		}),
		limiter,
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, lis, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
	health.Shutdown()
}

func newVerifier(logger *slog.Logger) (*auth.Verifier, error) {
	secret := config.String("JWT_SECRET", "")
	url := config.String("JWKS_URL", "")
	if url == "" {
		if secret == "" {
			logger.Info("token verification disabled; trusting X-Business-Id")
		}
		return auth.NewVerifier(secret, nil), nil
	}
	jwks, err := auth.FetchJWKS(url, time.Duration(config.Int("JWKS_REFRESH_SECONDS", 300))*time.Second, logger)
	if err != nil {
		return nil, err
	}
	return auth.NewVerifier(secret, jwks), nil
}
