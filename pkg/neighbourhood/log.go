// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package neighbourhood

import (
	"context"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// DefaultPageSize bounds how many envelopes one Since call returns when the
// caller passes no limit.
const DefaultPageSize = 256

// Log is the replicated, append-only log of one neighbourhood.
type Log interface {
	// Join registers member as a participant.
	Join(ctx context.Context, member language.DID) error
	// Append publishes env and returns its sequence number. Sequence
	// numbers start at 1 and strictly increase. Appending an ID that is
	// already in the log returns the original sequence number.
	Append(ctx context.Context, env Envelope) (uint64, error)
	// Since returns envelopes with Seq > after in order, at most limit of
	// them (DefaultPageSize when limit <= 0).
	Since(ctx context.Context, after uint64, limit int) ([]Envelope, error)
	// Members returns every joined member and envelope author, sorted.
	Members(ctx context.Context) ([]language.DID, error)
}

var (
	_ Log = (*MemoryHub)(nil)
	_ Log = (*SQLiteLog)(nil)
	_ Log = (*Reliable)(nil)
)

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}
