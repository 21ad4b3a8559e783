package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	platformhealth "github.com/shestoi/storefront/platform/health/http"
	platformhttpclient "github.com/shestoi/storefront/platform/httpclient"
	platformkafka "github.com/shestoi/storefront/platform/kafka"
	platformlogging "github.com/shestoi/storefront/platform/logging"
	platformobservability "github.com/shestoi/storefront/platform/observability"
	platformshutdown "github.com/shestoi/storefront/platform/shutdown"
	httpapi "github.com/shestoi/storefront/services/order/internal/api/http"
	httpclient "github.com/shestoi/storefront/services/order/internal/client/http"
	"github.com/shestoi/storefront/services/order/internal/config"
	"github.com/shestoi/storefront/services/order/internal/event/kafka"
	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/repository/memory"
	"github.com/shestoi/storefront/services/order/internal/repository/postgres"
	redislocker "github.com/shestoi/storefront/services/order/internal/repository/redis"
	"github.com/shestoi/storefront/services/order/internal/service"
	"github.com/shestoi/storefront/services/order/migrations"
)

// store хранилище заказов, резервирований и outbox одним объектом (одна транзакция на заказ)
type store interface {
	repository.OrderRepository
	repository.ReservationRepository
	repository.OutboxRepository
}

// worker фоновая задача, работающая до отмены ctx
type worker struct {
	name  string
	start func(ctx context.Context) error
}

// App содержит все зависимости для запуска и корректного shutdown Order Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager

	workers     []worker
	workersCtx  context.Context
	stopWorkers context.CancelFunc
	workersWG   sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Order Service
func Build(cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "order",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{logger: logger}
	a.workersCtx, a.stopWorkers = context.WithCancel(context.Background())

	a.shutdownMgr = platformshutdown.New(cfg.ShutdownTimeout, logger)
	// при ошибке сборки закрываем то, что уже успели открыть
	fail := func(err error) (*App, error) {
		a.stopWorkers()
		_ = a.shutdownMgr.Shutdown()
		return nil, err
	}

	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "order",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return fail(err)
	}
	a.shutdownMgr.Add("otel", otelShutdown)

	checks := map[string]platformhealth.Check{}

	orders, err := buildStore(ctx, cfg, logger, a.shutdownMgr, checks)
	if err != nil {
		return fail(err)
	}
	locker, err := buildLocker(ctx, cfg, logger, a.shutdownMgr, checks)
	if err != nil {
		return fail(err)
	}

	inventory := httpclient.NewInventoryClient(platformhttpclient.New(cfg.InventoryHTTPAddr, "inventory"))
	cart := httpclient.NewCartClient(platformhttpclient.New(cfg.CartHTTPAddr, "cart"))

	deps := service.Deps{
		Cart:         cart,
		Ledger:       inventory,
		Catalog:      inventory,
		Orders:       orders,
		Reservations: orders,
		Locker:       locker,
	}
	// outbox пишется всегда, когда его есть кому прочитать: Postgres переживает
	// выключенную Kafka, in-memory хранилище нет
	var orderCreatedTopic string
	if cfg.Kafka.Enabled || cfg.Store == config.StorePostgres {
		orderCreatedTopic = cfg.Kafka.OrderCreatedTopic
	}

	if cfg.Kafka.Enabled {
		writer := platformkafka.NewWriter(cfg.Kafka)
		a.shutdownMgr.Add("kafka_writer", platformshutdown.CloseWith(writer))

		deps.Alerts = kafka.NewAlertPublisher(logger, writer, cfg.Kafka.CompensationFailedTopic)

		dispatcher := kafka.NewOutboxDispatcher(logger, orders, writer, kafka.DispatcherConfig{
			BatchSize:  cfg.OutboxBatchSize,
			Interval:   cfg.OutboxInterval,
			MaxRetries: cfg.OutboxMaxRetries,
			Backoff:    cfg.OutboxBackoff,
		})
		a.workers = append(a.workers, worker{name: "outbox_dispatcher", start: dispatcher.Start})
	} else {
		logger.Warn("Kafka disabled: order.created stays in outbox, compensation alerts are logged only")
	}

	orderService := service.NewOrderService(deps, service.Config{
		StepTimeout:             cfg.StepTimeout,
		SagaTimeout:             cfg.SagaTimeout,
		CompensationMaxAttempts: cfg.CompensationMaxAttempts,
		CompensationBackoff:     cfg.CompensationBackoff,
		OrderCreatedTopic:       orderCreatedTopic,
	}, logger)

	sweeper := service.NewReservationSweeper(logger, orders, inventory, service.SweeperConfig{
		GracePeriod: cfg.ReservationGracePeriod,
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
		StepTimeout: cfg.StepTimeout,
	})
	a.workers = append(a.workers, worker{name: "reservation_sweeper", start: sweeper.Start})

	// воркеры останавливаются после HTTP сервера, но до закрытия Kafka writer и хранилища
	a.shutdownMgr.Add("background_workers", a.shutdownWorkers)

	handler := httpapi.NewHandler(orderService, logger)
	router := httpapi.NewRouter(handler, checks, logger)

	a.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
		// WriteTimeout с запасом на всю saga
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SagaTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	a.shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	logger.Info("Order service configured",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("store", string(cfg.Store)),
		zap.String("locker", string(cfg.Locker)),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)
	return a, nil
}

// buildStore подключает хранилище заказов и регистрирует его закрытие
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager, checks map[string]platformhealth.Check) (store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		logger.Info("Applying database migrations")
		if err := migrations.Up(ctx, cfg.PostgresDSN); err != nil {
			return nil, err
		}

		logger.Info("Connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		checks["postgres"] = pool.Ping
		return postgres.NewRepository(pool), nil

	case config.StoreMemory:
		logger.Warn("Using in-memory order store: orders and reservations are lost on restart")
		return memory.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown order store %q", cfg.Store)
}

// buildLocker создаёт блокировку пользователя на время оформления
func buildLocker(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager, checks map[string]platformhealth.Check) (service.UserLocker, error) {
	switch cfg.Locker {
	case config.LockerRedis:
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		shutdownMgr.Add("redis", platformshutdown.CloseWith(client))
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return redislocker.NewUserLocker(client, logger), nil

	case config.LockerMemory:
		logger.Warn("Using in-process user locker: safe for a single replica only")
		return memory.NewUserLocker(), nil
	}
	return nil, fmt.Errorf("unknown locker %q", cfg.Locker)
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения
func (a *App) shutdownWorkers(ctx context.Context) error {
	a.stopWorkers()

	done := make(chan struct{})
	go func() {
		a.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background workers did not stop: %w", ctx.Err())
	}
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	// ошибка любого участника группы отменяет ctx и запускает shutdown
	g, ctx := errgroup.WithContext(context.Background())

	a.logger.Info("Starting Order service", zap.String("addr", a.httpServer.Addr))

	g.Go(func() error {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, w := range a.workers {
		a.workersWG.Add(1)
		g.Go(func() error {
			defer a.workersWG.Done()
			if err := w.start(a.workersCtx); err != nil {
				a.logger.Error("Background worker failed", zap.String("worker", w.name), zap.Error(err))
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}

	a.shutdownMgr.Wait(ctx)

	err := g.Wait()
	a.logger.Info("Order service stopped")
	return err
}
