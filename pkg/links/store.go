// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package links

import (
	"context"
	"slices"
	"sync"

	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
)

// Store holds the ordered links of one perspective with its revision, the
// neighbourhood cursor and the outbox of commits not yet published.
// Revisions start at 0.
type Store interface {
	// Links returns every link in insertion order.
	Links(ctx context.Context) ([]language.LinkExpression, error)
	Revision(ctx context.Context) (uint64, error)
	// Cursor is the sequence number of the last neighbourhood envelope seen.
	Cursor(ctx context.Context) (uint64, error)
	// Commit applies diff and advances the revision by one.
	Commit(ctx context.Context, diff language.PerspectiveDiff) (uint64, error)
	// Merge applies diff and stores cursor. The revision advances only
	// when diff is not empty.
	Merge(ctx context.Context, diff language.PerspectiveDiff, cursor uint64) (uint64, error)
	// CommitQueued is Commit plus queueing the envelope build returns for
	// the new revision. Nothing changes when build fails.
	CommitQueued(ctx context.Context, diff language.PerspectiveDiff, build EnvelopeFunc) (uint64, error)
	// Pending returns the queued envelopes in commit order.
	Pending(ctx context.Context) ([]neighbourhood.Envelope, error)
	// Dequeue drops the queued envelope id. Unknown ids are ignored.
	Dequeue(ctx context.Context, id string) error
}

// EnvelopeFunc builds the envelope publishing the commit at revision.
type EnvelopeFunc func(revision uint64) (neighbourhood.Envelope, error)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// applyDiff appends additions and drops the first structural match of
// each removal. Unmatched removals are ignored.
func applyDiff(links []language.LinkExpression, diff language.PerspectiveDiff) []language.LinkExpression {
	links = append(links, diff.Additions...)
	for _, removal := range diff.Removals {
		if i := indexOfKey(links, removal.Data.Key()); i >= 0 {
			links = slices.Delete(links, i, i+1)
		}
	}
	return links
}

func indexOfKey(links []language.LinkExpression, key language.LinkKey) int {
	return slices.IndexFunc(links, func(l language.LinkExpression) bool {
		return l.Data.Key() == key
	})
}

// MemoryStore keeps links in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	links    []language.LinkExpression
	revision uint64
	cursor   uint64
	outbox   []neighbourhood.Envelope
}

// NewMemoryStore creates an empty store at revision 0.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Links implements Store.
func (s *MemoryStore) Links(context.Context) ([]language.LinkExpression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]language.LinkExpression, len(s.links))
	copy(out, s.links)
	return out, nil
}

// Revision implements Store.
func (s *MemoryStore) Revision(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

// Cursor implements Store.
func (s *MemoryStore) Cursor(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, nil
}

// Commit implements Store.
func (s *MemoryStore) Commit(_ context.Context, diff language.PerspectiveDiff) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = applyDiff(s.links, diff)
	s.revision++
	return s.revision, nil
}

// Merge implements Store.
func (s *MemoryStore) Merge(_ context.Context, diff language.PerspectiveDiff, cursor uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !diff.Empty() {
		s.links = applyDiff(s.links, diff)
		s.revision++
	}
	s.cursor = cursor
	return s.revision, nil
}

// CommitQueued implements Store.
func (s *MemoryStore) CommitQueued(_ context.Context, diff language.PerspectiveDiff, build EnvelopeFunc) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := build(s.revision + 1)
	if err != nil {
		return 0, err
	}
	s.links = applyDiff(s.links, diff)
	s.revision++
	s.outbox = append(s.outbox, env)
	return s.revision, nil
}

// Pending implements Store.
func (s *MemoryStore) Pending(context.Context) ([]neighbourhood.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.outbox), nil
}

// Dequeue implements Store.
func (s *MemoryStore) Dequeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = slices.DeleteFunc(s.outbox, func(env neighbourhood.Envelope) bool { return env.ID == id })
	return nil
}
