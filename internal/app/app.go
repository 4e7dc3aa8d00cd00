package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/auth"
	"github.com/vladislavdragonenkov/caffe/internal/health"
	"github.com/vladislavdragonenkov/caffe/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/cart"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
	"github.com/vladislavdragonenkov/caffe/internal/service/idempotency"
	"github.com/vladislavdragonenkov/caffe/internal/service/inventory"
	"github.com/vladislavdragonenkov/caffe/internal/service/orders"
	"github.com/vladislavdragonenkov/caffe/internal/service/outbox"
	"github.com/vladislavdragonenkov/caffe/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/caffe/internal/version"
)

// application — собранный сервис: HTTP handler и фоновые воркеры.
type application struct {
	handler  http.Handler
	workers  []func(ctx context.Context)
	deps     *runtimeDependencies
	producer *kafka.Producer
	logger   *log.Entry
}

// metricsRegistry объединяет регистрацию и сбор метрик; в тестах отдельный prometheus.Registry.
type metricsRegistry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

type defaultRegistry struct {
	prometheus.Registerer
	prometheus.Gatherer
}

// Run поднимает сервис и блокируется до отмены ctx или ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithField("build", version.String()).Info("starting caffe service")

	app, err := newApplication(ctx, cfg, logger, defaultRegistry{
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		return err
	}
	defer app.close()

	lis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	return app.serve(ctx, lis, cfg.HTTP)
}

func newApplication(ctx context.Context, cfg Config, logger *log.Entry, registry metricsRegistry) (*application, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := seedUsers(ctx, deps.users, cfg.Seed.Users, logger); err != nil {
		deps.Close(logger)
		return nil, err
	}

	caffeMetrics := metrics.NewCaffeMetricsWithRegisterer(registry)
	emitter := events.NewEmitter(deps.outbox, deps.timeline, caffeMetrics, log.WithField("component", "events"))

	ledger := inventory.NewLedger(deps.dishes, deps.categories, deps.stocks,
		inventory.WithEmitter(emitter),
		inventory.WithMetrics(caffeMetrics),
		inventory.WithLogger(log.WithField("component", "inventory")),
	)
	carts := cart.NewManager(deps.users, deps.dishes, deps.carts,
		cart.WithMetrics(caffeMetrics),
		cart.WithLogger(log.WithField("component", "cart")),
	)
	assembler := orders.NewAssembler(orders.AssemblerDeps{
		Users:    deps.users,
		Carts:    deps.carts,
		Orders:   deps.orders,
		Checkout: deps.checkout,
		Timeline: deps.timeline,
		Events:   emitter,
		Metrics:  caffeMetrics,
		Logger:   log.WithField("component", "order-assembler"),
	})
	statusMachine := orders.NewStatusMachine(deps.orders, emitter, caffeMetrics, log.WithField("component", "order-status"))

	app := &application{deps: deps, logger: logger}

	// без Kafka события копятся в outbox до следующего запуска с брокером
	if producer, _ := connectKafka(cfg.Kafka, logger); producer != nil {
		app.producer = producer
		app.workers = append(app.workers, newOutboxWorker(cfg, deps, producer, registry).Run)
	} else {
		logger.Warn("outbox worker is disabled: kafka producer is not available")
	}

	if deps.idempotencyExpires {
		sweeper := idempotency.NewSweeper(deps.idempotencyRepo,
			idempotency.WithLogger(log.WithField("component", "idempotency-sweeper")),
			idempotency.WithInterval(cfg.Idempotency.CleanupInterval),
			idempotency.WithBatchSize(cfg.Idempotency.CleanupBatch),
			idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(registry)),
		)
		app.workers = append(app.workers, sweeper.Run)
	}

	healthHandler := health.NewHandler(version.Get().Version)
	for _, check := range deps.checks {
		healthHandler.Register(check.name, check.probe, check.options...)
	}
	// отставание outbox не мешает принимать заказы, но видно в /healthz
	healthHandler.Register("outbox", outbox.BacklogProbe(deps.outbox, cfg.Outbox.StaleAfter), health.Optional())

	if !cfg.Log.debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	app.handler = httpapi.NewRouter(httpapi.Deps{
		Carts:          carts,
		Orders:         assembler,
		Status:         statusMachine,
		Inventory:      ledger,
		Identity:       auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Idempotency:    deps.idempotencyRepo,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Health:         healthHandler,
		Metrics:        metrics.NewHTTPMetricsWithRegisterer(registry),
		Gatherer:       registry,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         log.WithField("component", "http"),
	})

	return app, nil
}

func newOutboxWorker(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, registry prometheus.Registerer) *outbox.Worker {
	topics := kafkaTopics(cfg.Kafka)
	options := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registry)),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
	}
	if !cfg.Kafka.DLQDisabled {
		options = append(options, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, topics)))
	}
	return outbox.NewWorker(deps.outbox, kafka.NewOutboxPublisher(producer, topics), options...)
}

// serve обслуживает HTTP до отмены ctx, затем останавливает сервер и воркеры.
func (a *application) serve(ctx context.Context, lis net.Listener, cfg HTTPConfig) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	for _, run := range a.workers {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(workerCtx)
		}(run)
	}

	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP сервер слушает %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(srv, cfg.ShutdownTimeout, a.logger)
		serveErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	stopWorkers()
	wg.Wait()
	return serveErr
}

func (a *application) close() {
	closeKafka(a.producer, a.logger)
	a.deps.Close(a.logger)
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
