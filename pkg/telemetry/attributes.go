// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry and slog integration for the
// language adapters.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans, metrics and log records.
const (
	AttrLanguageName = "ad4m.language.name"
	AttrAgentDID     = "ad4m.agent.did"

	AttrExpressionAddress = "ad4m.expression.address"
	AttrExpressionScheme  = "ad4m.expression.address_scheme"
	AttrExpressionFound   = "ad4m.expression.found"

	AttrLinksAdditions = "ad4m.links.additions"
	AttrLinksRemovals  = "ad4m.links.removals"
	AttrLinksRevision  = "ad4m.links.revision"
	AttrLinksCount     = "ad4m.links.count"

	AttrNeighbourhoodID = "ad4m.neighbourhood.id"
	AttrSyncLearned     = "ad4m.sync.learned"
	AttrSyncPushed      = "ad4m.sync.pushed"
	AttrSyncState       = "ad4m.sync.state"

	AttrComponent   = "component"
	AttrErrorCode   = "error.code"
	AttrRecoverable = "recoverable"
)

// DiffAttributes returns attributes describing a perspective diff.
func DiffAttributes(additions, removals int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLinksAdditions, additions),
		attribute.Int(AttrLinksRemovals, removals),
	}
}

// ExpressionAttributes returns attributes for an expression lookup or write.
func ExpressionAttributes(address string, found bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrExpressionFound, found),
	}
	if address != "" {
		attrs = append(attrs, attribute.String(AttrExpressionAddress, address))
	}
	return attrs
}
