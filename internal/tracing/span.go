package tracing

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrRunID = attribute.Key("loadrig.run_id")
	AttrPhase = attribute.Key("loadrig.phase")
)

// StartPhaseSpan starts a span for one phase of a run.
func StartPhaseSpan(ctx context.Context, tracer trace.Tracer, runID, phase string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "loadrig "+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		AttrRunID.String(runID),
		AttrPhase.String(phase),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EnvCarrier returns the trace context of ctx as environment entries
// (TRACEPARENT, TRACESTATE, BAGGAGE) for a child process. It returns nil when
// ctx carries no valid span.
func EnvCarrier(ctx context.Context) []string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	keys := carrier.Keys()
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, strings.ToUpper(k)+"="+carrier.Get(k))
	}
	return env
}
