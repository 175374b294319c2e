// Package main is the entry point for the Supernova sync engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/NovaUNL/Supernova-sub000/cmd/supernova-sync/app"
	"github.com/NovaUNL/Supernova-sub000/internal/config"
)

// getLogLevel resolves the log level from the --log-level flag, then SUPERNOVA_LOG_LEVEL,
// then LOG_LEVEL. Unknown values fall back to info.
func getLogLevel(levelStr string) slog.Level {
	if levelStr == "" {
		v := viper.New()
		v.SetEnvPrefix(config.EnvPrefix)
		v.AutomaticEnv()
		levelStr = v.GetString("LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		return slog.LevelInfo
	}
	if strings.EqualFold(levelStr, "warning") {
		return slog.LevelWarn
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		slog.Warn("Invalid log level, using info", "value", levelStr)
		return slog.LevelInfo
	}
	return level
}

// traceHandler adds the trace and span IDs of the active span to each record,
// so a failed reconciliation in the logs can be found in the trace of its run.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// setupLogging installs the default logger. Logs go to stderr so that stdout stays
// clean for commands that output data (e.g., version --format json).
func setupLogging(format, level string) {
	opts := &slog.HandlerOptions{Level: getLogLevel(level)}
	var base slog.Handler
	if strings.EqualFold(format, "text") {
		base = slog.NewTextHandler(os.Stderr, opts)
	} else {
		base = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(&traceHandler{Handler: base}))
}

func main() {
	root := app.NewRootCmd(setupLogging)

	if err := root.Execute(); err != nil {
		var validationErr *app.ValidationError
		if errors.As(err, &validationErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
