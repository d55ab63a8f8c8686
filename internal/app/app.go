package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderstore/internal/health"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/tracing"
	"github.com/vladislavdragonenkov/orderstore/internal/transport/rest"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

// Run поднимает хранилище, REST API и сервер метрик и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	tracerProvider, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опциональна: без неё события изменения заказов не пишутся в outbox.
	var (
		kafkaProducer *kafka.Producer
		outboxRepo    domain.OutboxRepository
		stopWorker    context.CancelFunc
		workerDone    <-chan struct{}
	)
	if producer, err := initKafkaProducer(cfg.KafkaBrokers, logger); err == nil && producer != nil {
		kafkaProducer = producer
		outboxRepo = deps.outboxRepo
		stopWorker, workerDone = startOutboxWorker(ctx, cfg, outboxRepo, kafkaProducer, logger)
	}
	defer closeKafkaProducer(kafkaProducer, logger)
	defer shutdownOutboxWorker(stopWorker, workerDone, logger)

	svcOptions := []orders.Option{orders.WithLogger(log.WithField("component", "order-service"))}
	if outboxRepo != nil {
		svcOptions = append(svcOptions, orders.WithOutbox(outboxRepo))
	}
	if deps.seedLock != nil {
		svcOptions = append(svcOptions, orders.WithSeedLock(deps.seedLock))
	}
	orderService := orders.NewService(deps.repo, svcOptions...)

	if cfg.SeedOnStart {
		if _, err := orderService.Seed(ctx); err != nil {
			return fmt.Errorf("seed orders: %w", err)
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	metricsSrv, err := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	if err != nil {
		return err
	}
	defer shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	router := rest.NewRouter(orderService, rest.Options{
		Logger:         log.WithField("component", "rest"),
		Metrics:        metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TracerProvider: tracerProvider,
		Propagator:     tracing.NewPropagator(),
	})
	apiSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("REST API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает служебный сервер: /metrics, health checks и /version.
// srv.Addr содержит фактический адрес слушателя.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.Handle("/version", version.Handler())

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	srv := &http.Server{Addr: lis.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", lis.Addr())
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", lis.Addr(), lis.Addr(), lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 0, logger)
	}()

	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
