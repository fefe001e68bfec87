package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TestOTLPSmoke pushes one commit and one sync worth of spans and metrics
// to a live collector. It runs only when AD4M_OTLP_SMOKE_TEST=1.
func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("AD4M_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set AD4M_OTLP_SMOKE_TEST=1 to run")
	}
	endpoint := os.Getenv("AD4M_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set AD4M_TELEMETRY_OTLP_ENDPOINT to the collector address")
	}
	timeout, err := time.ParseDuration(os.Getenv("AD4M_TELEMETRY_OTLP_TIMEOUT"))
	if err != nil {
		timeout = 10 * time.Second
	}

	shutdown, err := InitWithConfig("ad4mlang-smoke", "dev", Config{
		Exporter:       "otlp",
		OTLPEndpoint:   endpoint,
		OTLPInsecure:   os.Getenv("AD4M_TELEMETRY_OTLP_INSECURE") == "true",
		OTLPTimeout:    timeout,
		MetricInterval: time.Second,
		Attributes:     []attribute.KeyValue{attribute.String(AttrLanguageName, "smoke")},
	})
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := WithNeighbourhood(context.Background(), "smoke")
	ctx, span := otel.Tracer("ad4mlang/smoke").Start(ctx, "Links.Commit")
	span.SetAttributes(DiffAttributes(2, 1)...)
	metrics.Committed(ctx, 2, 1)
	metrics.Synced(ctx, 3, 1, 40*time.Millisecond, nil)
	span.End()

	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("telemetry shutdown: %v", err)
	}
}
