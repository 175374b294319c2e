// Package telemetry provides OpenTelemetry instrumentation for the sync engine.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/NovaUNL/Supernova-sub000/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for sync runs
type SyncMetrics struct {
	runDuration metric.Float64Histogram
	entities    metric.Int64Counter
	stepErrors  metric.Int64Counter
	lastSuccess metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"supernova_sync_run_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, err
	}

	entities, err := meter.Int64Counter(
		"supernova_sync_entities_total",
		metric.WithDescription("Entities reconciled by sync runs, by kind and outcome"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	stepErrors, err := meter.Int64Counter(
		"supernova_sync_step_errors_total",
		metric.WithDescription("Sync steps that ended with an error"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	lastSuccess, err := meter.Int64Gauge(
		"supernova_sync_last_success_timestamp_seconds",
		metric.WithDescription("Unix time of the last successful run of each mode"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runDuration: runDuration,
		entities:    entities,
		stepErrors:  stepErrors,
		lastSuccess: lastSuccess,
	}, nil
}

// RecordRunDuration records the duration of a sync run
func (m *SyncMetrics) RecordRunDuration(ctx context.Context, mode string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEntities adds the per-kind outcome counts of a finished run
func (m *SyncMetrics) RecordEntities(ctx context.Context, mode string, byKind map[model.Kind]pkgsync.Counts) {
	if m == nil || m.entities == nil {
		return
	}

	for kind, counts := range byKind {
		for outcome, n := range counts.ByOutcome() {
			if n == 0 {
				continue
			}
			m.entities.Add(ctx, n, metric.WithAttributes(
				attribute.String("mode", mode),
				attribute.String("kind", string(kind)),
				attribute.String("outcome", string(outcome)),
			))
		}
	}
}

// RecordStepErrors counts the failed steps of a run
func (m *SyncMetrics) RecordStepErrors(ctx context.Context, mode string, n int) {
	if m == nil || m.stepErrors == nil || n == 0 {
		return
	}
	m.stepErrors.Add(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordLastSuccess records when a mode last finished successfully
func (m *SyncMetrics) RecordLastSuccess(ctx context.Context, mode string, at time.Time) {
	if m == nil || m.lastSuccess == nil {
		return
	}
	m.lastSuccess.Record(ctx, at.Unix(), metric.WithAttributes(attribute.String("mode", mode)))
}
