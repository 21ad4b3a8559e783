package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// healthService пробы k8s приходят каждые несколько секунд, трассировать их бессмысленно
const healthService = "grpc.health.v1.Health"

// metadataCarrier адаптирует incoming metadata к propagation.TextMapCarrier
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if vals := metadata.MD(c).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// splitFullMethod "/grpc.health.v1.Health/Check" -> ("grpc.health.v1.Health", "Check")
func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, service
	}
	return service, method
}

// GRPCUnaryServerInterceptor считает длительность каждого RPC (rpc.server.duration)
// и открывает server span с родителем из incoming metadata.
// Вызовы grpc.health.v1.Health только считаются, span для них не создаётся.
func GRPCUnaryServerInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(serviceName)
	// ошибка регистрации даёт рабочий no-op инструмент
	duration, _ := otel.Meter(serviceName).Float64Histogram("rpc.server.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of inbound gRPC calls"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rpcService, rpcMethod := splitFullMethod(info.FullMethod)
		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", rpcService),
			attribute.String("rpc.method", rpcMethod),
		}
		start := time.Now()

		var span trace.Span
		if rpcService != healthService {
			md, _ := metadata.FromIncomingContext(ctx)
			ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
			ctx, span = tracer.Start(ctx, info.FullMethod,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()
		}

		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs = append(attrs, attribute.Int("rpc.grpc.status_code", int(code)))
		duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), metric.WithAttributes(attrs...))
		if span != nil && code != grpccodes.OK {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(code)))
		}
		return resp, err
	}
}
