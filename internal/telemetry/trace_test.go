package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs a tracer provider backed by an in-memory exporter
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	res, err := createResource(DefaultConfig())
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	providerMu.Lock()
	globalProvider = tp
	providerMu.Unlock()

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		providerMu.Lock()
		globalProvider = nil
		providerMu.Unlock()
	})

	return exporter
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestUpstreamSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartUpstreamSpan(context.Background(), "coingecko", "markets")
	EndUpstreamSpan(span, 200, 4096, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "coingecko.markets", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	attrs := attrMap(spans[0].Attributes)
	assert.Equal(t, "coingecko", attrs[string(VendorKey)])
	assert.Equal(t, "markets", attrs[string(OperationKey)])
	assert.Equal(t, "200", attrs[string(StatusCodeKey)])
	assert.Equal(t, "4096", attrs[string(BodySizeKey)])
}

func TestUpstreamSpanWithoutResponse(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartUpstreamSpan(context.Background(), "stooq", "ohlc")
	EndUpstreamSpan(span, 0, 0, errors.New("dial tcp: connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)

	attrs := attrMap(spans[0].Attributes)
	_, hasStatus := attrs[string(StatusCodeKey)]
	assert.False(t, hasStatus)
	_, hasSize := attrs[string(BodySizeKey)]
	assert.False(t, hasSize)
}

func TestRoleLookupSpan(t *testing.T) {
	tests := []struct {
		name   string
		found  bool
		err    error
		result string
		code   codes.Code
	}{
		{"found", true, nil, LookupFound, codes.Ok},
		{"absent", false, nil, LookupAbsent, codes.Ok},
		{"error", false, errors.New("connection refused"), LookupError, codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := setupTestTracer(t)

			_, span := StartRoleLookupSpan(context.Background(), "redis")
			EndRoleLookupSpan(span, tt.found, tt.err)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "roles.lookup", spans[0].Name)
			assert.Equal(t, tt.code, spans[0].Status.Code)

			attrs := attrMap(spans[0].Attributes)
			assert.Equal(t, "redis", attrs[string(StoreKey)])
			assert.Equal(t, tt.result, attrs[string(LookupResultKey)])
			if tt.err != nil {
				require.Len(t, spans[0].Events, 1)
				assert.Equal(t, "exception", spans[0].Events[0].Name)
			}
		})
	}
}

func TestRecordErrorNil(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartRoleLookupSpan(context.Background(), "memory")
	RecordError(span, nil)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}
