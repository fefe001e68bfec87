// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// logLevel is shared by every handler ConfigureSlog builds so a config
// reload can change it in place.
var logLevel = new(slog.LevelVar)

// ConfigureSlog installs a slog default that writes level-filtered records
// in format ("json" or "text") and tags them with the span and
// neighbourhood found in the record's context.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logLevel.Set(parseLogLevel(level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var base slog.Handler = slog.NewTextHandler(output, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	}
	logger := slog.New(contextHandler{Handler: base})
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of loggers built by ConfigureSlog.
func SetLogLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

// LogLevel returns the current level of loggers built by ConfigureSlog.
func LogLevel() slog.Level {
	return logLevel.Level()
}

// parseLogLevel accepts slog level names plus "warning". Anything else is info.
func parseLogLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type neighbourhoodKey struct{}

// WithNeighbourhood returns a context whose log records carry the
// neighbourhood id.
func WithNeighbourhood(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, neighbourhoodKey{}, id)
}

// NeighbourhoodFromContext returns the id set by WithNeighbourhood.
func NeighbourhoodFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(neighbourhoodKey{}).(string)
	return id
}

// SpanIDs returns the trace and span id of the span in ctx, or empty
// strings when there is none.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	if ctx == nil {
		return "", ""
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// contextHandler adds trace_id, span_id and the neighbourhood id from the
// record's context unless the record already sets them.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	present := make(map[string]bool, 3)
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "trace_id", "span_id", AttrNeighbourhoodID:
			present[a.Key] = true
		}
		return true
	})

	traceID, spanID := SpanIDs(ctx)
	for _, a := range []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
		slog.String(AttrNeighbourhoodID, NeighbourhoodFromContext(ctx)),
	} {
		if a.Value.String() != "" && !present[a.Key] {
			record.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
