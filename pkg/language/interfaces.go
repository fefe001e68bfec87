// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package language

import (
	"context"
	"log/slog"
)

// AgentService is the host-supplied identity that authors and signs
// expressions.
type AgentService interface {
	DID() DID
	// Sign produces the proof for a canonical signing payload.
	Sign(ctx context.Context, payload []byte) (Proof, error)
}

// Context is what the host hands to the factory for one language instance.
type Context struct {
	Agent AgentService
	// StorageDirectory is where the language may keep durable state.
	StorageDirectory string
	// Settings carries the raw language settings chosen by the host.
	Settings map[string]any
	Logger   *slog.Logger
}

// PutAdapter publishes new expressions.
type PutAdapter interface {
	CreatePublic(ctx context.Context, data any) (Address, error)
}

// ExpressionAdapter resolves addresses to expressions.
type ExpressionAdapter interface {
	// Get returns nil and no error when the address is unknown.
	Get(ctx context.Context, address Address) (*Expression, error)
	Putter() PutAdapter
}

// PerspectiveDiffObserver is notified when remote diffs are merged.
type PerspectiveDiffObserver func(diff PerspectiveDiff)

// SyncStateChangeObserver is notified when the sync state changes.
type SyncStateChangeObserver func(state SyncState)

// LinkSyncAdapter replicates a perspective across a neighbourhood.
type LinkSyncAdapter interface {
	Writable() bool
	Public() bool
	Others(ctx context.Context) ([]DID, error)
	CurrentRevision(ctx context.Context) (string, error)
	Sync(ctx context.Context) (PerspectiveDiff, error)
	Render(ctx context.Context) (Perspective, error)
	Commit(ctx context.Context, diff PerspectiveDiff) (string, error)
	AddCallback(observer PerspectiveDiffObserver)
	AddSyncStateChangeCallback(observer SyncStateChangeObserver)
}
