package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
)

// TracerName is the instrumentation name of the HTTP server spans.
const TracerName = "github.com/kart-io/megaservice/pkg/infra/middleware"

type tracingOptions struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	skipPaths  map[string]struct{}
}

// TracingOption configures the Tracing middleware.
type TracingOption func(*tracingOptions)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(o *tracingOptions) {
		o.provider = tp
	}
}

// WithPropagator sets the propagator. Defaults to the global one.
func WithPropagator(p propagation.TextMapPropagator) TracingOption {
	return func(o *tracingOptions) {
		o.propagator = p
	}
}

// WithTracingSkipPaths sets paths that are not traced.
func WithTracingSkipPaths(paths ...string) TracingOption {
	return func(o *tracingOptions) {
		for _, p := range paths {
			o.skipPaths[p] = struct{}{}
		}
	}
}

// Tracing returns a middleware that extracts the W3C trace context from the
// request, starts a server span named "METHOD route" and adds trace_id and
// span_id to the request logger fields.
func Tracing(opts ...TracingOption) gin.HandlerFunc {
	o := &tracingOptions{skipPaths: map[string]struct{}{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.provider == nil {
		o.provider = otel.GetTracerProvider()
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}
	tracer := o.provider.Tracer(TracerName)

	return func(c *gin.Context) {
		req := c.Request
		if _, ok := o.skipPaths[req.URL.Path]; ok {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}

		ctx := o.propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := tracer.Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(req.Method),
				semconv.HTTPRoute(route),
				attribute.String("url.path", req.URL.Path),
				semconv.ServerAddress(req.Host),
				semconv.UserAgentOriginal(req.UserAgent()),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		if id := c.Writer.Header().Get(HeaderXRequestID); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}

		c.Request = req.WithContext(ctxlog.WithTraceContext(ctx))
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.RecordError(fmt.Errorf("HTTP %d: %s", status, c.Errors.String()))
		}
	}
}
