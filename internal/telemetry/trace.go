package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on finhub spans.
const (
	VendorKey       = attribute.Key("finhub.vendor")
	OperationKey    = attribute.Key("finhub.operation")
	StoreKey        = attribute.Key("finhub.role_store")
	LookupResultKey = attribute.Key("finhub.role_lookup.result")
	StatusCodeKey   = attribute.Key("http.response.status_code")
	BodySizeKey     = attribute.Key("http.response.body.size")
)

// Role lookup outcomes recorded under LookupResultKey.
const (
	LookupFound  = "found"
	LookupAbsent = "absent"
	LookupError  = "error"
)

// StartUpstreamSpan creates a client span for a market data vendor call.
// Finish it with EndUpstreamSpan.
//
//	ctx, span := telemetry.StartUpstreamSpan(ctx, "stooq", "ohlc")
//	defer func() { telemetry.EndUpstreamSpan(span, code, len(body), err) }()
func StartUpstreamSpan(ctx context.Context, vendor, operation string) (context.Context, trace.Span) {
	return GetTracerProvider().Tracer("finhub/market").Start(ctx, vendor+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(VendorKey.String(vendor), OperationKey.String(operation)),
	)
}

// EndUpstreamSpan records the outcome of a vendor call and ends the span.
// status is 0 when no response arrived.
func EndUpstreamSpan(span trace.Span, status, size int, err error) {
	defer span.End()
	if status > 0 {
		span.SetAttributes(StatusCodeKey.Int(status))
	}
	if err != nil {
		RecordError(span, err)
		return
	}
	span.SetAttributes(BodySizeKey.Int(size))
	span.SetStatus(codes.Ok, "")
}

// StartRoleLookupSpan creates a span around one role store lookup. The user
// ID is not recorded. Finish it with EndRoleLookupSpan.
func StartRoleLookupSpan(ctx context.Context, store string) (context.Context, trace.Span) {
	return GetTracerProvider().Tracer("finhub/roles").Start(ctx, "roles.lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(StoreKey.String(store)),
	)
}

// EndRoleLookupSpan records whether a record was found and ends the span.
func EndRoleLookupSpan(span trace.Span, found bool, err error) {
	defer span.End()
	switch {
	case err != nil:
		span.SetAttributes(LookupResultKey.String(LookupError))
		RecordError(span, err)
	case found:
		span.SetAttributes(LookupResultKey.String(LookupFound))
		span.SetStatus(codes.Ok, "")
	default:
		span.SetAttributes(LookupResultKey.String(LookupAbsent))
		span.SetStatus(codes.Ok, "")
	}
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
