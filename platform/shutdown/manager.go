package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager выполняет graceful shutdown: ждёт SIGINT/SIGTERM (или отмену контекста)
// и вызывает зарегистрированные функции в обратном порядке регистрации.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	funcs []namedFunc
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New создаёт Manager; timeout ограничивает каждую функцию по отдельности
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Add регистрирует функцию остановки.
// Регистрировать нужно в порядке создания ресурсов: закрываются они в обратном.
func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Wait блокируется до сигнала или отмены ctx, затем выполняет Shutdown
func (m *Manager) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		m.logger.Warn("Context cancelled, starting graceful shutdown", zap.Error(context.Cause(ctx)))
	} else {
		m.logger.Info("Received shutdown signal, starting graceful shutdown")
	}

	m.Shutdown()
}

// Shutdown выполняет все функции остановки и возвращает объединённую ошибку
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	funcs := make([]namedFunc, len(m.funcs))
	copy(funcs, m.funcs)
	m.funcs = nil
	m.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		start := time.Now()
		err := f.fn(ctx)
		cancel()

		if err != nil {
			errs = append(errs, err)
			m.logger.Error("Shutdown function failed",
				zap.String("name", f.name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			continue
		}
		m.logger.Info("Shutdown function completed",
			zap.String("name", f.name),
			zap.Duration("duration", time.Since(start)))
	}

	m.logger.Info("Graceful shutdown completed")
	return errors.Join(errs...)
}

// ShutdownHTTPServer возвращает функцию остановки для http.Server
func ShutdownHTTPServer(srv interface {
	Shutdown(context.Context) error
}) func(context.Context) error {
	return func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}
}

// ShutdownGRPCServer делает GracefulStop, а по истечении таймаута Stop
func ShutdownGRPCServer(srv interface {
	GracefulStop()
	Stop()
}) func(context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return errors.New("graceful stop timeout exceeded, forced stop")
		}
	}
}

// DisconnectMongo возвращает функцию остановки для MongoDB клиента
func DisconnectMongo(client interface {
	Disconnect(context.Context) error
}) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Disconnect(ctx)
	}
}

// ClosePool возвращает функцию остановки для пула соединений (pgxpool)
func ClosePool(pool interface {
	Close()
}) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

// CloseWith адаптирует Close() error (redis, kafka writer) к функции остановки
func CloseWith(c interface {
	Close() error
}) func(context.Context) error {
	return func(context.Context) error {
		return c.Close()
	}
}

// SetHealthNotServing переводит gRPC health в NOT_SERVING до остановки сервера
func SetHealthNotServing(health interface {
	SetNotServing(string)
}) func(context.Context) error {
	return func(context.Context) error {
		health.SetNotServing("")
		return nil
	}
}
