// Package otel holds the span helpers and attribute keys of the sync engine. Every
// helper accepts a nil tracer, which is how tracing is turned off.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrSyncMode      = attribute.Key("sync.mode")
	AttrSyncRunID     = attribute.Key("sync.run_id")
	AttrEntityKind    = attribute.Key("entity.kind")
	AttrExternalID    = attribute.Key("entity.external_id")
	AttrPolicy        = attribute.Key("sync.recursion_policy")
	AttrUpstreamPath  = attribute.Key("upstream.path")
	AttrResultCount   = attribute.Key("result.count")
	AttrPoolWorkers   = attribute.Key("pool.workers")
	AttrPoolQueueSize = attribute.Key("pool.queue_size")
)

// failedStatus is the only status description set on failed spans. Errors from the
// store can carry SQL and connection details, which belong in the error event.
const failedStatus = "operation failed"

// StartSpan starts name under ctx. Without a tracer the span already in ctx is
// returned, so callers can End it unconditionally.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// Entity tags a span with the entity it reconciles
func Entity(kind string, extID int64) trace.SpanStartOption {
	return trace.WithAttributes(AttrEntityKind.String(kind), AttrExternalID.Int64(extID))
}

// RecordError adds err to span as an event and fails the span. It returns err.
func RecordError(span trace.Span, err error) error {
	if err == nil || span == nil {
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, failedStatus)
	return err
}
