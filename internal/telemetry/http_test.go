package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type instrumentedRouter struct {
	handler http.Handler
	spans   *tracetest.SpanRecorder
	reader  *sdkmetric.ManualReader
}

// newInstrumentedRouter mounts a stand-in of the status API behind the HTTP middleware
func newInstrumentedRouter(t *testing.T) *instrumentedRouter {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	instrument, err := newHTTPMiddleware(tp, mp)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(instrument)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/status", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/{mode}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "mode") == "hourly" {
				http.NotFound(w, r)
				return
			}
			// Handlers see the server span in their context
			if !trace.SpanFromContext(r.Context()).SpanContext().IsValid() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	r.Get("/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	return &instrumentedRouter{handler: r, spans: spans, reader: reader}
}

func (ir *instrumentedRouter) get(t *testing.T, path string, header http.Header) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	ir.handler.ServeHTTP(rr, req)
	return rr.Code
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPMiddleware_Spans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path       string
		wantCode   int
		wantName   string
		wantMode   string
		wantStatus codes.Code
	}{
		{path: "/health", wantCode: http.StatusOK, wantName: "GET /health", wantStatus: codes.Ok},
		{path: "/status/", wantCode: http.StatusOK, wantName: "GET /status", wantStatus: codes.Ok},
		{path: "/status/slow", wantCode: http.StatusOK, wantName: "GET /status/{mode}", wantMode: "slow", wantStatus: codes.Ok},
		{path: "/status/hourly", wantCode: http.StatusNotFound, wantName: "GET /status/{mode}", wantMode: "hourly", wantStatus: codes.Error},
		{path: "/readiness", wantCode: http.StatusServiceUnavailable, wantName: "GET /readiness", wantStatus: codes.Error},
		{path: "/students/42", wantCode: http.StatusNotFound, wantName: "GET " + unmatchedRoute, wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			ir := newInstrumentedRouter(t)

			require.Equal(t, tt.wantCode, ir.get(t, tt.path, nil))

			ended := ir.spans.Ended()
			require.Len(t, ended, 1)
			span := ended[0]
			assert.Equal(t, tt.wantName, span.Name())
			assert.Equal(t, trace.SpanKindServer, span.SpanKind())
			assert.Equal(t, tt.wantStatus, span.Status().Code)

			code, ok := spanAttr(span, "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.wantCode), code.AsInt64())

			mode, ok := spanAttr(span, "sync.mode")
			if tt.wantMode == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantMode, mode.AsString())
			}
		})
	}
}

func TestHTTPMiddleware_Metrics(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	ir.get(t, "/status/fast", nil)
	ir.get(t, "/status/full", nil)
	ir.get(t, "/status/hourly", nil)
	ir.get(t, "/no/such/route", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, ir.reader.Collect(context.Background(), &rm))

	got := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name == HTTPInstrumentationName {
			for _, m := range scope.Metrics {
				got[m.Name] = m
			}
		}
	}

	requests, ok := got["supernova_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byLabels := map[string]int64{}
	for _, dp := range requests.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status_code")
		byLabels[route.AsString()+" "+status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/status/{mode} 200": 2,
		"/status/{mode} 404": 1,
		"unknown_route 404":  1,
	}, byLabels, "path parameters never become label values")

	inFlight, ok := got["supernova_http_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range inFlight.DataPoints {
		assert.Zero(t, dp.Value)
	}

	_, ok = got["supernova_http_request_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestHTTPMiddleware_ContinuesIncomingTrace(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	// The global propagator is only installed once tracing is enabled
	tel, err := New(context.Background(), &Config{
		Enabled:  true,
		Endpoint: "127.0.0.1:4318",
		Tracing:  &TracingConfig{Enabled: true},
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	t.Cleanup(func() {
		_ = tel.Shutdown(ctx)
		cancel()
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	header := http.Header{}
	header.Set("Traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	ir.get(t, "/status/slow", header)

	ended := ir.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, traceID, ended[0].SpanContext().TraceID().String())
	assert.True(t, ended[0].Parent().IsRemote())
}

func TestTelemetryHTTPMiddleware_Noop(t *testing.T) {
	t.Parallel()

	tel := &Telemetry{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	instrument, err := tel.HTTPMiddleware()
	require.NoError(t, err)

	called := false
	handler := instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
