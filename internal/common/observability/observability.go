package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         oteltrace.Tracer
	stageCounter   otelmetric.Int64Counter
	stageDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	stageCounter, _ := meter.Int64Counter(
		"stages.processed",
		otelmetric.WithDescription("Number of pipeline stages processed"),
	)

	stageDuration, _ := meter.Float64Histogram(
		"stages.duration",
		otelmetric.WithDescription("Stage processing duration"),
		otelmetric.WithUnit("ms"),
	)

	obs := &Observability{
		meterProvider: provider,
		meter:         meter,
		stageCounter:  stageCounter,
		stageDuration: stageDuration,
	}

	obs.initTracing(serviceName)
	return obs
}

// initTracing wires the jaeger exporter when a collector endpoint is reachable.
// Tracing is best-effort; the pipeline runs fine without a collector.
func (o *Observability) initTracing(serviceName string) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint())
	if err != nil {
		log.Printf("Failed to create Jaeger exporter: %v", err)
		return
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	o.tracerProvider = tp
	o.tracer = tp.Tracer(serviceName)
}

// StartStageSpan opens a span around one stage execution.
func (o *Observability) StartStageSpan(ctx context.Context, stage, applicationID string) (context.Context, oteltrace.Span) {
	if o.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, "stage."+stage, oteltrace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("stage", stage),
	))
}

func (o *Observability) RecordStageProcessed(ctx context.Context, stage, status string) {
	if o.stageCounter != nil {
		o.stageCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordStageDuration(ctx context.Context, stage string, duration time.Duration) {
	if o.stageDuration != nil {
		o.stageDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		o.tracerProvider.Shutdown(ctx)
	}
}
