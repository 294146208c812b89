// Package app собирает сервис вместимости из хранилища, часов, ledger,
// админ-контроллера, HTTP-поверхности и фоновых воркеров.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/nailflow/capacity/internal/clock"
	healthcheck "github.com/nailflow/capacity/internal/health"
	"github.com/nailflow/capacity/internal/messaging/kafka"
	"github.com/nailflow/capacity/internal/metrics"
	"github.com/nailflow/capacity/internal/service/admin"
	"github.com/nailflow/capacity/internal/service/httpapi"
	"github.com/nailflow/capacity/internal/service/idempotency"
	"github.com/nailflow/capacity/internal/service/ledger"
	"github.com/nailflow/capacity/internal/service/outbox"
	"github.com/nailflow/capacity/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает и запускает сервис, блокируясь до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	businessClock, err := clock.NewBusinessClock(cfg.Timezone)
	if err != nil {
		return err
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	admissionMetrics := metrics.NewAdmissionMetrics()

	ldg := ledger.New(
		deps.CapacityRepo,
		businessClock,
		logger.WithField("layer", "ledger"),
		ledger.WithAudit(deps.AuditRepo),
		ledger.WithOutbox(deps.OutboxRepo),
		ledger.WithMetrics(admissionMetrics),
		ledger.WithDefaultCapacity(cfg.DefaultWeeklyCapacity),
	)

	adminController := admin.NewController(
		deps.CapacityRepo,
		deps.AuditRepo,
		ldg,
		businessClock,
		logger.WithField("layer", "admin"),
		admissionMetrics,
	)

	// Kafka опционален: без брокеров события копятся в outbox и будут
	// опубликованы после перезапуска с настроенным producer.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	var workers sync.WaitGroup
	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.AuditTopic)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.DLQTopic)

		worker := outbox.NewWorker(
			deps.OutboxRepo,
			publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workersCtx)
		}()
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.IdempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workersCtx)
	}()

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		store := deps.Store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiServer := httpapi.NewServer(
		ldg,
		adminController,
		logger.WithField("layer", "http"),
		httpapi.WithIdempotency(deps.IdempotencyRepo, cfg.IdempotencyTTL),
		httpapi.WithAdminToken(cfg.AdminToken),
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)

		stopWorkers()
		workers.Wait()
		closeKafka(kafkaProducer, logger)
		return ctx.Err()

	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		closeKafka(kafkaProducer, logger)

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
