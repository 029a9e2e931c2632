package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"PulseQueue/internal/awscfg"
	"PulseQueue/internal/config"
	"PulseQueue/internal/consumer"
	"PulseQueue/internal/email"
	"PulseQueue/internal/idempotency"
	"PulseQueue/internal/metrics"
	"PulseQueue/internal/queue"
	"PulseQueue/internal/worker"
)

const purgeInterval = time.Hour

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.ValidateConsumer(); err != nil {
		logger.Fatal("invalid consumer config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsClients, err := awscfg.Load(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal("aws config failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Idempotency Store
	// ------------------------------------------------
	store, closeStore, err := newStore(ctx, cfg, awsClients)
	if err != nil {
		logger.Fatal("idempotency store failed", zap.Error(err))
	}
	defer closeStore()

	// ------------------------------------------------
	// Email Transport
	// ------------------------------------------------
	sender, err := newSender(cfg, awsClients, logger)
	if err != nil {
		logger.Fatal("email transport failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Poller
	// ------------------------------------------------
	q := queue.NewSQS(awsClients.SQS(), cfg.QueueURL, queue.ReceiveOptions{
		MaxMessages:       cfg.ConsumerBatchSize,
		WaitSeconds:       cfg.ConsumerWaitSeconds,
		VisibilityTimeout: cfg.ConsumerVisibilityTimeout,
	})

	var wg sync.WaitGroup

	worker.StartPoller(ctx, &wg, &worker.Poller{
		Source:     q,
		Handler:    consumer.New(store, sender, cfg.FromAddress, logger),
		Log:        logger,
		MaxBackoff: 30 * time.Second,

		BatchTimeout: cfg.BatchTimeout(),
	})

	if purger, ok := store.(idempotency.Purger); ok {
		worker.StartPurger(ctx, &wg, purger, purgeInterval, logger)
	}

	logger.Info("consumer started",
		zap.String("transport", cfg.EmailTransport),
		zap.String("idempotency_backend", cfg.IdempotencyBackend),
	)

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Let the in-flight batch finish
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}

func newStore(ctx context.Context, cfg *config.Config, aws *awscfg.Clients) (idempotency.Store, func(), error) {
	switch cfg.IdempotencyBackend {
	case "dynamodb":
		return idempotency.NewDynamoStore(aws.DynamoDB(), cfg.IdempotencyTable), func() {}, nil
	case "postgres":
		s, err := idempotency.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.IdempotencyTable)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := idempotency.NewSQLiteStore(cfg.SQLitePath, cfg.IdempotencyTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "memory":
		return idempotency.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}

func newSender(cfg *config.Config, aws *awscfg.Clients, logger *zap.Logger) (email.Sender, error) {
	switch cfg.EmailTransport {
	case "ses":
		return email.NewSESSender(aws.SES(cfg.EmailRegion())), nil
	case "smtp":
		return &email.SMTPSender{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPassword,
			RetryBudget: cfg.SendRetryBudget(),
		}, nil
	case "resend":
		return email.NewResendSender(cfg.ResendAPIKey), nil
	case "log":
		return &email.LogSender{Log: logger}, nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.EmailTransport)
	}
}
