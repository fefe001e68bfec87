// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// ShutdownFunc flushes and stops the providers installed by InitWithConfig.
type ShutdownFunc func(context.Context) error

// Config controls telemetry exporter behavior.
type Config struct {
	// Exporter is one of "none", "stdout" or "otlp".
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPTimeout  time.Duration
	// Writer receives stdout exporter output. Defaults to os.Stdout; the
	// CLI points it at stderr so command output stays parseable.
	Writer io.Writer
	// MetricInterval is the export period of the metric reader. Defaults
	// to one minute.
	MetricInterval time.Duration
	// Attributes are added to the resource, e.g. the language name.
	Attributes []attribute.KeyValue
}

// Init initializes the OpenTelemetry SDK with stdout exporters.
func Init(serviceName, version string) (ShutdownFunc, error) {
	return InitWithConfig(serviceName, version, Config{Exporter: "stdout"})
}

// exporters is the pair a provider set is built from.
type exporters struct {
	spans   trace.SpanExporter
	metrics metric.Exporter
}

// InitWithConfig installs global tracer and meter providers and the W3C
// propagators. With Exporter "none" the global no-op providers stay in
// place.
func InitWithConfig(serviceName, version string, cfg Config) (ShutdownFunc, error) {
	if cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporters(cfg)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	}, cfg.Attributes...)
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "create telemetry resource", err)
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp.spans, trace.WithBatchTimeout(time.Second)),
		trace.WithResource(res),
	)
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exp.metrics, metric.WithInterval(interval))),
		metric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return stderrors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newExporters(cfg Config) (exporters, error) {
	switch cfg.Exporter {
	case "", "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		spans, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return exporters{}, errors.New(errors.CodeInternal, "create stdout trace exporter", err)
		}
		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return exporters{}, errors.New(errors.CodeInternal, "create stdout metric exporter", err)
		}
		return exporters{spans: spans, metrics: metrics}, nil

	case "otlp":
		if cfg.OTLPEndpoint == "" {
			return exporters{}, errors.New(errors.CodeInvalidInput, "otlp endpoint is required", nil)
		}
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		if cfg.OTLPTimeout > 0 {
			traceOpts = append(traceOpts, otlptracegrpc.WithTimeout(cfg.OTLPTimeout))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithTimeout(cfg.OTLPTimeout))
		}
		spans, err := otlptracegrpc.New(context.Background(), traceOpts...)
		if err != nil {
			return exporters{}, errors.New(errors.CodeNetwork, "create otlp trace exporter", err).
				WithContext("endpoint", cfg.OTLPEndpoint)
		}
		metrics, err := otlpmetricgrpc.New(context.Background(), metricOpts...)
		if err != nil {
			_ = spans.Shutdown(context.Background())
			return exporters{}, errors.New(errors.CodeNetwork, "create otlp metric exporter", err).
				WithContext("endpoint", cfg.OTLPEndpoint)
		}
		return exporters{spans: spans, metrics: metrics}, nil

	default:
		return exporters{}, errors.New(errors.CodeInvalidInput, "unknown telemetry exporter", nil).
			WithContext("exporter", cfg.Exporter)
	}
}
