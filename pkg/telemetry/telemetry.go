// Package telemetry wires OpenTelemetry metrics and traces.
//
// Telemetry is off by default; the global no-op providers are installed and
// every instrument call is free. With OTEL_ENABLED=true spans and metrics are
// exported to stdout.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "boringexpenses"

// Init installs SDK providers when enabled and returns a shutdown func that
// flushes exporters. When disabled it is a no-op.
func Init(ctx context.Context, enabled bool) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(scope)),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	texp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(texp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mexp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)

	// instruments created before Init are bound to the old provider
	instOnce = sync.Once{}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}

var (
	instOnce    sync.Once
	transitions metric.Int64Counter
	sideEffects metric.Int64Counter
	aiRequests  metric.Int64Counter
	aiDuration  metric.Float64Histogram
)

func instruments() {
	instOnce.Do(func() {
		m := otel.Meter(scope)
		transitions, _ = m.Int64Counter("claims.status.transitions",
			metric.WithDescription("Claim status changes committed"))
		sideEffects, _ = m.Int64Counter("claims.side_effect.failures",
			metric.WithDescription("Notification and payment dispatch failures"))
		aiRequests, _ = m.Int64Counter("ai.requests",
			metric.WithDescription("Calls made to the language model"))
		aiDuration, _ = m.Float64Histogram("ai.request.duration",
			metric.WithDescription("Language model request duration"),
			metric.WithUnit("ms"))
	})
}

// RecordTransition counts a committed status change.
func RecordTransition(ctx context.Context, from, to string) {
	instruments()
	transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordSideEffectFailure counts a failed notification or payment.
func RecordSideEffectFailure(ctx context.Context, kind string) {
	instruments()
	sideEffects.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAIRequest records one model call.
func RecordAIRequest(ctx context.Context, operation string, elapsed time.Duration, err error) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	)
	aiRequests.Add(ctx, 1, attrs)
	aiDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
