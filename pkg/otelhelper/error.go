package otelhelper

import (
	"github.com/dukex/ruleflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError fails span and tags it with the engine error kind of err, so
// timeouts and registry misses can be told apart in the trace backend.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	attrs = append(attrs, attribute.String(ErrorKindKey, string(models.KindOf(err))))

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, err.Error())
}
