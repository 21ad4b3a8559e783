package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Health оборачивает стандартный gRPC health service (для k8s grpc probes)
type Health struct {
	srv *health.Server
}

// New создаёт Health в статусе NOT_SERVING: готовность выставляется после проверки зависимостей
func New() *Health {
	srv := health.NewServer()
	srv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Health{srv: srv}
}

// Register регистрирует health service; вызывать до Serve
func (h *Health) Register(grpcSrv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcSrv, h.srv)
}

// SetServing переводит сервис (или весь сервер при пустом имени) в SERVING
func (h *Health) SetServing(serviceName string) {
	h.srv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetNotServing переводит сервис (или весь сервер при пустом имени) в NOT_SERVING
func (h *Health) SetNotServing(serviceName string) {
	h.srv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Watch периодически вызывает check и синхронизирует общий статус с результатом.
// Возвращается при отмене ctx.
func (h *Health) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		if err := check(checkCtx); err != nil {
			h.SetNotServing("")
		} else {
			h.SetServing("")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
