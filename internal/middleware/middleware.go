package middleware

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cartridge/wizard-replay/internal/metrics"
)

// CorrelationIDKey is the metadata key carrying a request's correlation id
const CorrelationIDKey = "x-correlation-id"

type correlationKey struct{}

// CorrelationID returns the id attached by RequestLogger, if any
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// RequestLogger creates a zerolog-based unary interceptor. It reuses the
// caller's correlation id or mints one, logs the outcome and records an RPC
// metric.
func RequestLogger(logger zerolog.Logger, collector *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		correlationID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(CorrelationIDKey); len(values) > 0 {
				correlationID = values[0]
			}
		}
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx = context.WithValue(ctx, correlationKey{}, correlationID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(CorrelationIDKey, correlationID))

		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		code := status.Code(err)
		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("correlation_id", correlationID).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("Request completed")

		collector.RPC(info.FullMethod, code.String(), duration)

		return resp, err
	}
}

// Recoverer turns a handler panic into an Internal error
func Recoverer(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rvr := recover(); rvr != nil {
				logger.Error().
					Interface("panic", rvr).
					Str("method", info.FullMethod).
					Str("stack", string(debug.Stack())).
					Msg("Handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
