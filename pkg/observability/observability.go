package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/milan604/apiclient/pkg/config"
	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/version"
)

// ObservabilityIface defines the interface for observability operations
type ObservabilityIface interface {
	// StartSpan creates a new span for tracing
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// Shutdown flushes pending spans and stops the exporter
	Shutdown(ctx context.Context) error

	// GetTracer returns the tracer instance
	GetTracer() trace.Tracer
}

// Observability owns the OpenTelemetry tracer provider.
type Observability struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	log            logger.LogManager
	serviceName    string
}

// New sets up tracing from settings. When tracing is disabled the returned
// value hands out the global (no-op by default) tracer and Shutdown does
// nothing.
func New(ctx context.Context, log logger.LogManager, cfg config.TraceSettings) (ObservabilityIface, error) {
	log = logger.OrNop(log)
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "apiclient"
	}
	if !cfg.Enabled {
		return &Observability{tracer: otel.Tracer(serviceName), log: log, serviceName: serviceName}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.InfoF("Tracing initialized: service=%s, version=%s, endpoint=%s", serviceName, version.Version, cfg.Endpoint)

	return &Observability{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName, trace.WithInstrumentationVersion(version.Version)),
		log:            log,
		serviceName:    serviceName,
	}, nil
}

// StartSpan creates a new span for tracing
func (o *Observability) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the tracer provider.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o.tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := o.tracerProvider.Shutdown(ctx); err != nil {
		o.log.ErrorF("failed to shutdown tracer provider: %v", err)
		return err
	}
	o.log.InfoF("Observability shutdown completed")
	return nil
}

// GetTracer returns the tracer instance
func (o *Observability) GetTracer() trace.Tracer {
	return o.tracer
}
