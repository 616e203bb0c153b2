package otelhelper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind models.ErrorKind
	}{
		{"timeout", fmt.Errorf("%w: after 1s", models.ErrTimeout), models.ErrorKindTimeout},
		{"registry lookup", fmt.Errorf("%w: sms", models.ErrRegistryLookup), models.ErrorKindRegistryLookup},
		{"generic failure", errors.New("boom"), models.ErrorKindActionExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := tracetest.NewSpanRecorder()
			provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			_, span := StartSpan(t.Context(), provider.Tracer("test"), "ruleflow.action",
				attribute.String(ActionIDKey, "notify"))
			SetError(span, tt.err)
			span.End()

			spans := recorder.Ended()
			require.Len(t, spans, 1)

			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, tt.err.Error(), spans[0].Status().Description)
			assert.Contains(t, spans[0].Attributes(), attribute.String(ErrorKindKey, string(tt.wantKind)))
			assert.Contains(t, spans[0].Attributes(), attribute.String(ActionIDKey, "notify"))
		})
	}
}

func TestSetError_NilLeavesSpanUnset(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(t.Context(), "ok")
	SetError(span, nil)
	span.End()

	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}

func TestNoopTracing_Shutdown(t *testing.T) {
	tracing := NoopTracing()

	require.NotNil(t, tracing.Tracer)
	require.NoError(t, tracing.Shutdown(t.Context()))

	var missing *Tracing
	assert.NoError(t, missing.Shutdown(t.Context()))
}
