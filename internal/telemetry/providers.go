package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// SyncTracerName names the tracer of sync runs, steps and reconciliations
	SyncTracerName = "github.com/NovaUNL/Supernova-sub000/sync"

	// UpstreamTracerName names the tracer of upstream requests
	UpstreamTracerName = "github.com/NovaUNL/Supernova-sub000/upstream"

	// MetricsPushInterval is how often metrics are pushed to the collector
	MetricsPushInterval = 60 * time.Second
)

func newResource(ctx context.Context, s exportSettings) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// newTracerProvider returns an SDK provider exporting over OTLP/HTTP, or a no-op
// provider when tracing is off. The SDK provider is installed globally along with
// the W3C trace context propagator.
func newTracerProvider(ctx context.Context, cfg *Config) (trace.TracerProvider, error) {
	if !cfg.tracingEnabled() {
		slog.Debug("Tracing disabled")
		return tracenoop.NewTracerProvider(), nil
	}
	s := cfg.exportSettings()

	res, err := newResource(ctx, s)
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	sampling := cfg.Tracing.GetSampling()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampling))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if s.insecure {
		slog.Warn("Traces are exported over plain HTTP")
	}
	slog.Info("Tracing initialized", "endpoint", s.endpoint, "sampling_ratio", sampling)
	return tp, nil
}

// newMeterProvider returns an SDK provider with a periodic OTLP reader unless push is
// disabled, plus a Prometheus reader registered on reg when one is given. It falls back
// to a no-op provider when metrics are off.
func newMeterProvider(ctx context.Context, cfg *Config, reg promclient.Registerer) (metric.MeterProvider, error) {
	if !cfg.metricsEnabled() {
		slog.Debug("Metrics disabled")
		return metricnoop.NewMeterProvider(), nil
	}
	s := cfg.exportSettings()

	res, err := newResource(ctx, s)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	push := !cfg.Metrics.PushDisabled
	if push {
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(MetricsPushInterval)),
		))
	}

	if reg != nil {
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "endpoint", s.endpoint, "push", push, "prometheus", reg != nil)
	return mp, nil
}
