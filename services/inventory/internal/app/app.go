package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	platformhealthgrpc "github.com/shestoi/storefront/platform/health/grpc"
	platformhealth "github.com/shestoi/storefront/platform/health/http"
	platformlogging "github.com/shestoi/storefront/platform/logging"
	platformobservability "github.com/shestoi/storefront/platform/observability"
	platformshutdown "github.com/shestoi/storefront/platform/shutdown"
	httpapi "github.com/shestoi/storefront/services/inventory/internal/api/http"
	"github.com/shestoi/storefront/services/inventory/internal/config"
	"github.com/shestoi/storefront/services/inventory/internal/repository"
	"github.com/shestoi/storefront/services/inventory/internal/repository/memory"
	mongorepo "github.com/shestoi/storefront/services/inventory/internal/repository/mongo"
	"github.com/shestoi/storefront/services/inventory/internal/repository/postgres"
	"github.com/shestoi/storefront/services/inventory/internal/service"
	"github.com/shestoi/storefront/services/inventory/migrations"
)

// App содержит все зависимости для запуска и корректного shutdown Inventory Service
type App struct {
	logger       *zap.Logger
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *platformhealthgrpc.Health
	ready        platformhealth.Check
	shutdownMgr  *platformshutdown.Manager
	wg           sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Inventory Service
func Build(cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "inventory",
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

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	// при ошибке сборки закрываем то, что уже успели открыть
	fail := func(err error) (*App, error) {
		_ = shutdownMgr.Shutdown()
		return nil, err
	}

	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "inventory",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return fail(err)
	}
	shutdownMgr.Add("otel", otelShutdown)

	seed, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return fail(err)
	}

	ledger, ready, err := buildLedger(ctx, cfg, logger, shutdownMgr, seed)
	if err != nil {
		return fail(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerService := service.NewLedgerService(ledger, logger, service.NewMetrics(registry))
	handler := httpapi.NewHandler(ledgerService, logger)
	router := httpapi.NewRouter(handler, map[string]platformhealth.Check{"ledger": ready}, registry, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC сервер обслуживает только health (k8s grpc probes)
	health := platformhealthgrpc.New()
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(platformobservability.GRPCUnaryServerInterceptor("inventory")),
	)
	health.Register(grpcServer)

	listener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		return fail(fmt.Errorf("listen grpc health: %w", err))
	}

	shutdownMgr.Add("grpc_server", platformshutdown.ShutdownGRPCServer(grpcServer))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))
	shutdownMgr.Add("health_readiness", platformshutdown.SetHealthNotServing(health))

	logger.Info("Inventory service configured",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_health_addr", cfg.GRPCHealthAddr),
		zap.String("backend", string(cfg.LedgerBackend)),
	)

	return &App{
		logger:       logger,
		httpServer:   httpServer,
		grpcServer:   grpcServer,
		grpcListener: listener,
		health:       health,
		ready:        ready,
		shutdownMgr:  shutdownMgr,
	}, nil
}

// buildLedger подключает выбранное хранилище и регистрирует его закрытие
func buildLedger(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager, seed []repository.Product) (repository.StockLedger, platformhealth.Check, error) {
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		logger.Info("Applying database migrations")
		if err := migrations.Up(ctx, cfg.PostgresDSN); err != nil {
			return nil, nil, err
		}

		logger.Info("Connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
		if err := pool.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}

		repo := postgres.NewRepository(pool)
		if err := applySeed(ctx, repo, seed); err != nil {
			return nil, nil, err
		}
		return repo, pool.Ping, nil

	case config.BackendMongo:
		logger.Info("Connecting to MongoDB")
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, err
		}
		shutdownMgr.Add("mongodb", platformshutdown.DisconnectMongo(client))
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}

		repo := mongorepo.NewRepository(client, cfg.MongoDBName)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		if err := applySeed(ctx, repo, seed); err != nil {
			return nil, nil, err
		}
		return repo, func(ctx context.Context) error { return client.Ping(ctx, nil) }, nil

	case config.BackendMemory:
		logger.Warn("Using in-memory ledger: stock is lost on restart")
		return memory.NewRepository(seed), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.logger.Info("Starting Inventory service", zap.String("addr", a.httpServer.Addr))

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		defer a.wg.Done()
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			a.logger.Error("gRPC server error", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		defer a.wg.Done()
		a.health.Watch(ctx, 5*time.Second, a.ready)
	}()

	a.shutdownMgr.Wait(ctx)
	cancel()

	a.wg.Wait()
	a.logger.Info("Inventory service stopped")
	return nil
}
