// Package otelhelper provides distributed tracing for rule executions.
package otelhelper

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	WorkflowIDKey      = "ruleflow.workflow.id"
	WorkflowVersionKey = "ruleflow.workflow.version"
	ActionIDKey        = "ruleflow.action.id"
	ActionTypeKey      = "ruleflow.action.type"
	ExecutionIDKey     = "ruleflow.execution.id"
	EventIDKey         = "ruleflow.event.id"
	EntityTypeKey      = "ruleflow.entity.type"
	OperationKey       = "ruleflow.operation"
	StatusKey          = "ruleflow.status"
	ErrorKindKey       = "ruleflow.error.kind"
)

// Tracing owns the tracer handed to the coordinator and dispatcher. Shutdown
// flushes buffered spans; it is a no-op for the noop tracer.
type Tracing struct {
	Tracer trace.Tracer

	provider *sdktrace.TracerProvider
}

// NewTracing exports spans over OTLP/HTTP. The endpoint comes from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func NewTracing(ctx context.Context, serviceName string) (*Tracing, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracing{Tracer: provider.Tracer(serviceName), provider: provider}, nil
}

// NoopTracing records nothing, for tests and binaries started without tracing.
func NoopTracing() *Tracing {
	return &Tracing{Tracer: NoopTracer()}
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}

	return t.provider.Shutdown(ctx)
}

// nolint:ireturn,spancheck // callers end the span
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// nolint:ireturn // trace.Tracer is the OpenTelemetry API
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("ruleflow")
}
