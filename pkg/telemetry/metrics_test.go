// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestDefaultMetricsIsShared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Fatal("expected DefaultMetrics to return the same instance")
	}
}

func TestRecordAll(t *testing.T) {
	m, _ := NewMetrics()
	ctx := context.Background()

	m.ExpressionCreated(ctx, "random")
	m.ExpressionLookup(ctx, true)
	m.ExpressionLookup(ctx, false)
	m.Committed(ctx, 2, 1)
	m.Committed(ctx, 0, 0)
	m.Synced(ctx, 3, 1, 12*time.Millisecond, nil)
	m.Synced(ctx, 0, 0, time.Millisecond, stderrors.New("unreachable"))
	m.RecordError(ctx, errors.New(errors.CodeNetwork, "publish", nil), "links")
	m.RecordError(ctx, stderrors.New("generic"), "expression")
	m.RecordError(ctx, nil, "links")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.ExpressionCreated(ctx, "content")
	m.ExpressionLookup(ctx, true)
	m.Committed(ctx, 1, 1)
	m.Synced(ctx, 1, 1, time.Second, nil)
	m.RecordError(ctx, stderrors.New("boom"), "links")
}
