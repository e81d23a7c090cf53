// Package interceptors holds the middleware every ved gRPC call passes
// through: panic recovery, request ids, tracing and call logging.
//
// Each concern is written once as a Middleware and adapted to both the
// unary and the streaming interceptor signatures.
package interceptors

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vedmemory/ved/pkg/logger"
)

// RequestIDKey is the metadata key shared with the HTTP X-Request-ID header.
const RequestIDKey = "x-request-id"

const (
	tracerName   = "ved.grpc"
	healthPrefix = "/grpc.health.v1.Health/"
)

// Middleware wraps one call. next runs the rest of the chain with the
// context it is given.
type Middleware func(ctx context.Context, method string, next func(context.Context) error) error

// Options selects the chain built by ServerOptions.
type Options struct {
	Log     logger.Logger
	Tracing bool
}

// Chain returns the middleware in call order.
func Chain(o Options) []Middleware {
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	chain := []Middleware{Recover(log), RequestID()}
	if o.Tracing {
		chain = append(chain, Trace())
	}
	return append(chain, LogCalls(log))
}

// ServerOptions turns Chain(o) into grpc server options.
func ServerOptions(o Options) []grpc.ServerOption {
	chain := Chain(o)
	unary := make([]grpc.UnaryServerInterceptor, len(chain))
	stream := make([]grpc.StreamServerInterceptor, len(chain))
	for i, m := range chain {
		unary[i] = Unary(m)
		stream[i] = Stream(m)
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
}

// Unary adapts m to a unary interceptor.
func Unary(m Middleware) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var resp any
		err := m(ctx, info.FullMethod, func(ctx context.Context) error {
			var err error
			resp, err = handler(ctx, req)
			return err
		})
		return resp, err
	}
}

// Stream adapts m to a stream interceptor. The stream seen by the handler
// carries the context m passed on.
func Stream(m Middleware) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return m(ss.Context(), info.FullMethod, func(ctx context.Context) error {
			return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
		})
	}
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }

// Recover converts a panic into codes.Internal.
func Recover(log logger.Logger) Middleware {
	return func(ctx context.Context, method string, next func(context.Context) error) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "gRPC handler panicked",
					"method", method,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return next(ctx)
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the id RequestID stored in ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// RequestID reuses the caller's x-request-id or generates one, stores it
// in the context and echoes it in the response header.
func RequestID() Middleware {
	return func(ctx context.Context, _ string, next func(context.Context) error) error {
		id := firstMD(ctx, RequestIDKey)
		if id == "" {
			id = uuid.NewString()
		}
		// Fails outside a real transport stream, e.g. in unit tests.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, id))
		return next(context.WithValue(ctx, requestIDKey{}, id))
	}
}

func firstMD(ctx context.Context, key string) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Trace starts a server span, continuing any trace propagated in the
// incoming metadata.
func Trace() Middleware {
	return func(ctx context.Context, method string, next func(context.Context) error) error {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = otel.GetTextMapPropagator().Extract(ctx, mdCarrier(md))

		service, rpc := splitMethod(method)
		ctx, span := otel.Tracer(tracerName).Start(ctx, method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.service", service),
				attribute.String("rpc.method", rpc),
			),
		)
		defer span.End()

		err := next(ctx)
		code := status.Code(err)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, code.String())
		}
		return err
	}
}

// LogCalls logs every finished call. Health probes go to debug.
func LogCalls(log logger.Logger) Middleware {
	return func(ctx context.Context, method string, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)

		id, _ := RequestIDFromContext(ctx)
		code := status.Code(err)
		args := []any{
			"method", method,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		}
		switch {
		case code == codes.Internal || code == codes.Unknown:
			log.ErrorContext(ctx, "gRPC call failed", append(args, "error", err)...)
		case strings.HasPrefix(method, healthPrefix):
			log.DebugContext(ctx, "gRPC call", args...)
		default:
			log.InfoContext(ctx, "gRPC call", args...)
		}
		return err
	}
}

// splitMethod splits "/pkg.Service/Method".
func splitMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if full == "" {
		return "unknown", "unknown"
	}
	service, method, ok := strings.Cut(full, "/")
	if !ok {
		return service, "unknown"
	}
	return service, method
}

type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c mdCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = mdCarrier{}
