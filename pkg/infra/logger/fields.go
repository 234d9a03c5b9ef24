// Package logger carries request scoped logging fields through
// context.Context and builds kart-io/logger instances that include them.
package logger

import (
	"context"
	"maps"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	loggerFieldsKey contextKey = iota
	contextLoggerKey
)

// loggerFields holds structured logging fields stored in a context.
type loggerFields struct {
	order  []string
	fields map[string]any
}

func (lf *loggerFields) clone() *loggerFields {
	if lf == nil {
		return &loggerFields{fields: map[string]any{}}
	}
	return &loggerFields{
		order:  append([]string(nil), lf.order...),
		fields: maps.Clone(lf.fields),
	}
}

func (lf *loggerFields) set(key string, value any) {
	if _, ok := lf.fields[key]; !ok {
		lf.order = append(lf.order, key)
	}
	lf.fields[key] = value
}

// toSlice 按写入顺序输出键值对，保证日志字段顺序稳定。
func (lf *loggerFields) toSlice() []any {
	if lf == nil || len(lf.order) == 0 {
		return nil
	}
	out := make([]any, 0, len(lf.order)*2)
	for _, k := range lf.order {
		out = append(out, k, lf.fields[k])
	}
	return out
}

func fieldsFrom(ctx context.Context) *loggerFields {
	lf, _ := ctx.Value(loggerFieldsKey).(*loggerFields)
	return lf
}

// WithFields adds key/value pairs to the context logger fields. A trailing
// key without value and non-string keys are ignored.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) < 2 {
		return ctx
	}
	lf := fieldsFrom(ctx).clone()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			lf.set(key, keysAndValues[i+1])
		}
	}
	return context.WithValue(ctx, loggerFieldsKey, lf)
}

// WithRequestID adds request_id to the context logger fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return WithFields(ctx, "request_id", requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	lf := fieldsFrom(ctx)
	if lf == nil {
		return ""
	}
	id, _ := lf.fields["request_id"].(string)
	return id
}

// WithTraceContext copies trace_id and span_id of the active span into the
// context logger fields.
func WithTraceContext(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	return WithFields(ctx, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// Fields returns the context logger fields as key/value pairs.
func Fields(ctx context.Context) []any {
	return fieldsFrom(ctx).toSlice()
}

// WithLogger stores a pre-configured logger in the context.
func WithLogger(ctx context.Context, log core.Logger) context.Context {
	return context.WithValue(ctx, contextLoggerKey, log)
}

// GetLogger returns the logger stored with WithLogger, or the global logger
// extended with the context fields.
func GetLogger(ctx context.Context) core.Logger {
	if l, ok := ctx.Value(contextLoggerKey).(core.Logger); ok {
		return l
	}
	base := logger.Global()
	if fields := Fields(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}
