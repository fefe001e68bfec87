// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// Metrics records adapter activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	expressionsCreated metric.Int64Counter
	expressionLookups  metric.Int64Counter
	commits            metric.Int64Counter
	linksAdded         metric.Int64Counter
	linksRemoved       metric.Int64Counter
	syncRuns           metric.Int64Counter
	syncLearned        metric.Int64Counter
	syncPushed         metric.Int64Counter
	syncLatencyMs      metric.Float64Histogram
	errorCounter       metric.Int64Counter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns process-wide metrics bound to the global meter
// provider. It returns nil if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics()
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics creates the adapter instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("ad4mlang")
	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.expressionsCreated, "ad4m.expressions.created", "Expressions created by scheme"},
		{&m.expressionLookups, "ad4m.expressions.lookups", "Expression lookups by outcome"},
		{&m.commits, "ad4m.links.commits", "Committed perspective diffs"},
		{&m.linksAdded, "ad4m.links.committed", "Links added by commits"},
		{&m.linksRemoved, "ad4m.links.removed", "Links removed by commits"},
		{&m.syncRuns, "ad4m.sync.runs", "Sync runs by resulting state"},
		{&m.syncLearned, "ad4m.sync.learned", "Link changes learned from peers"},
		{&m.syncPushed, "ad4m.sync.pushed", "Pending local diffs pushed during sync"},
		{&m.errorCounter, "ad4m.errors.total", "Errors by code and component"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	m.syncLatencyMs, err = meter.Float64Histogram(
		"ad4m.sync.duration_ms",
		metric.WithDescription("Sync duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ExpressionCreated counts a new expression.
func (m *Metrics) ExpressionCreated(ctx context.Context, scheme string) {
	if m == nil {
		return
	}
	m.expressionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrExpressionScheme, scheme),
	))
}

// ExpressionLookup counts a Get call.
func (m *Metrics) ExpressionLookup(ctx context.Context, found bool) {
	if m == nil {
		return
	}
	m.expressionLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool(AttrExpressionFound, found),
	))
}

// Committed counts one commit and the links it touched.
func (m *Metrics) Committed(ctx context.Context, added, removed int) {
	if m == nil {
		return
	}
	m.commits.Add(ctx, 1)
	if added > 0 {
		m.linksAdded.Add(ctx, int64(added))
	}
	if removed > 0 {
		m.linksRemoved.Add(ctx, int64(removed))
	}
}

// Synced records the outcome of one sync run.
func (m *Metrics) Synced(ctx context.Context, learned, pushed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	state := "synced"
	if err != nil {
		state = "failed"
	}
	attrs := metric.WithAttributes(attribute.String(AttrSyncState, state))
	m.syncRuns.Add(ctx, 1, attrs)
	m.syncLatencyMs.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if learned > 0 {
		m.syncLearned.Add(ctx, int64(learned))
	}
	if pushed > 0 {
		m.syncPushed.Add(ctx, int64(pushed))
	}
}

// RecordError counts err against component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	le := errors.AsLanguageError(err)
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(le.Code)),
		attribute.String(AttrComponent, component),
		attribute.String(AttrRecoverable, le.RecoverableString()),
	))
}
