package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	spans "github.com/NovaUNL/Supernova-sub000/internal/otel"
)

// HTTPInstrumentationName is the tracer and meter name of the status API
const HTTPInstrumentationName = "github.com/NovaUNL/Supernova-sub000/http"

// unmatchedRoute labels requests chi could not route, keeping raw paths out of labels
const unmatchedRoute = "unknown_route"

type httpInstruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// HTTPMiddleware returns middleware that traces and measures every request to the
// status API. Spans and metric labels use the chi route pattern, and status routes
// carry the requested sync mode.
func (t *Telemetry) HTTPMiddleware() (func(http.Handler) http.Handler, error) {
	return newHTTPMiddleware(t.tracerProvider, t.meterProvider)
}

func newHTTPMiddleware(tp trace.TracerProvider, mp metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	meter := mp.Meter(HTTPInstrumentationName)

	duration, err := meter.Float64Histogram(
		"supernova_http_request_duration_seconds",
		metric.WithDescription("Duration of status API requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	requests, err := meter.Int64Counter(
		"supernova_http_requests_total",
		metric.WithDescription("Status API requests served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	inFlight, err := meter.Int64UpDownCounter(
		"supernova_http_active_requests",
		metric.WithDescription("Status API requests in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-flight counter: %w", err)
	}

	ins := &httpInstruments{
		tracer:   tp.Tracer(HTTPInstrumentationName),
		duration: duration,
		requests: requests,
		inFlight: inFlight,
	}
	return ins.wrap, nil
}

func (ins *httpInstruments) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		// The route is only known after chi has matched it, so the span is renamed below
		ctx, span := ins.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				semconv.UserAgentOriginal(r.UserAgent()),
			),
		)
		defer span.End()

		ins.inFlight.Add(ctx, 1)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		ins.inFlight.Add(ctx, -1)

		route, mode := routeOf(r)
		code := ww.Status()

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCode(code),
		)
		if mode != "" {
			span.SetAttributes(spans.AttrSyncMode.String(mode))
		}
		if code >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(code))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		labels := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(code)),
		)
		ins.duration.Record(ctx, time.Since(start).Seconds(), labels)
		ins.requests.Add(ctx, 1, labels)
	})
}

// routeOf returns the matched chi pattern and, for /status/{mode}, the mode requested.
// chi drops the trailing slash of a mounted index, so /status/ reports as /status
func routeOf(r *http.Request) (route, mode string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return unmatchedRoute, ""
	}
	return rctx.RoutePattern(), rctx.URLParam("mode")
}
