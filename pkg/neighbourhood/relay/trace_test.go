// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestTraceMetadataRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0xd4},
		SpanID:     trace.SpanID{0x4d},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-caller", "alice")
	ctx = withTraceMetadata(trace.ContextWithSpanContext(ctx, sc))

	out, _ := metadata.FromOutgoingContext(ctx)
	if got := out.Get("x-caller"); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("existing metadata lost: %v", out)
	}
	if len(out.Get("traceparent")) != 1 {
		t.Fatalf("traceparent not injected: %v", out)
	}

	var remote trace.SpanContext
	handler := func(ctx context.Context, _ any) (any, error) {
		remote = trace.SpanContextFromContext(ctx)
		return nil, nil
	}
	in := metadata.NewIncomingContext(context.Background(), out)
	if _, err := UnaryTraceInterceptor()(in, nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if remote.TraceID() != sc.TraceID() || remote.SpanID() != sc.SpanID() || !remote.IsRemote() {
		t.Errorf("remote span = %v, want trace %s span %s", remote, sc.TraceID(), sc.SpanID())
	}
}

func TestTraceInterceptorWithoutMetadata(t *testing.T) {
	handler := func(ctx context.Context, _ any) (any, error) {
		if trace.SpanContextFromContext(ctx).IsValid() {
			t.Error("unexpected span context")
		}
		return "ok", nil
	}
	got, err := UnaryTraceInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	if err != nil || got != "ok" {
		t.Fatalf("got %v, %v", got, err)
	}
}
