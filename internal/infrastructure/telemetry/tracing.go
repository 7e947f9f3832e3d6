package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of application spans.
const TracerName = "github.com/pricecycle/backend"

// Attribute keys used on spans and metrics.
var (
	AttrRunID     = attribute.Key("pricecycle.run_id")
	AttrPhase     = attribute.Key("pricecycle.phase")
	AttrOutcome   = attribute.Key("pricecycle.outcome")
	AttrReason    = attribute.Key("pricecycle.trigger_reason")
	AttrPlatform  = attribute.Key("pricecycle.platform")
	AttrOperation = attribute.Key("pricecycle.operation")
	AttrChunkSize = attribute.Key("pricecycle.chunk_size")

	AttrHTTPMethod     = attribute.Key("http.request.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.response.status_code")
	AttrRequestID      = attribute.Key("request_id")
	AttrSubject        = attribute.Key("enduser.id")
)

// StartSpan starts an internal span named name using the global provider.
//
//	ctx, span := telemetry.StartSpan(ctx, "automation.adjust", telemetry.AttrRunID.String(id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartClientSpan starts a span around an outbound call.
func StartClientSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, fmt.Sprintf("%s.%s", component, operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan records *errp on span and ends it. Use with a named error return:
//
//	defer telemetry.EndSpan(span, &err)
func EndSpan(span trace.Span, errp *error) {
	if errp != nil {
		RecordError(span, *errp)
	}
	span.End()
}
