// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package language defines the data model and adapter contracts an AD4M
// host expects from a language plugin. Field names and JSON shapes are
// fixed by the host and must not change.
package language

import (
	"time"
)

// DID identifies an agent.
type DID = string

// Address is an opaque key for one stored expression.
type Address = string

// TimestampLayout is the ISO-8601 form hosts expect (millisecond precision, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Proof is the signature envelope attached to every expression.
type Proof struct {
	Key       string `json:"key" cbor:"key"`
	Signature string `json:"signature" cbor:"signature"`
	Valid     bool   `json:"valid" cbor:"valid"`
	Invalid   bool   `json:"invalid" cbor:"invalid"`
}

// Expression is an immutable, authored, timestamped piece of content.
type Expression struct {
	Author    DID    `json:"author" cbor:"author"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	Data      any    `json:"data" cbor:"data"`
	Proof     Proof  `json:"proof" cbor:"proof"`
}

// Link is a directed, optionally labeled edge between two addresses.
type Link struct {
	Source    string `json:"source" cbor:"source"`
	Target    string `json:"target" cbor:"target"`
	Predicate string `json:"predicate,omitempty" cbor:"predicate,omitempty"`
}

// LinkKey is the structural identity of a link.
type LinkKey struct {
	Source, Target, Predicate string
}

// Key returns the (source, target, predicate) key used to match removals.
func (l Link) Key() LinkKey {
	return LinkKey{Source: l.Source, Target: l.Target, Predicate: l.Predicate}
}

// LinkExpression is a link wrapped as an expression.
type LinkExpression struct {
	Author    DID    `json:"author" cbor:"author"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	Data      Link   `json:"data" cbor:"data"`
	Proof     Proof  `json:"proof" cbor:"proof"`
}

// Perspective is the full set of links currently known.
type Perspective struct {
	Links []LinkExpression `json:"links" cbor:"links"`
}

// PerspectiveDiff describes a change to apply to a perspective.
type PerspectiveDiff struct {
	Additions []LinkExpression `json:"additions" cbor:"additions"`
	Removals  []LinkExpression `json:"removals" cbor:"removals"`
}

// Empty reports whether the diff changes nothing.
func (d PerspectiveDiff) Empty() bool {
	return len(d.Additions) == 0 && len(d.Removals) == 0
}

// EmptyDiff returns a diff with non-nil empty slices, so it serializes as
// {"additions":[],"removals":[]}.
func EmptyDiff() PerspectiveDiff {
	return PerspectiveDiff{Additions: []LinkExpression{}, Removals: []LinkExpression{}}
}

// SyncState is the replication status a link adapter reports to the host.
type SyncState string

const (
	SyncStateSynced       SyncState = "Synced"
	SyncStateSyncing      SyncState = "Syncing"
	SyncStateFailedToSync SyncState = "LinkLanguageFailedToSync"
)

// InteractionParameter describes one input of an Interaction.
type InteractionParameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Interaction is an action the host may offer on an expression.
type Interaction struct {
	Label      string                 `json:"label"`
	Name       string                 `json:"name"`
	Parameters []InteractionParameter `json:"parameters"`
}
