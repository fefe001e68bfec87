// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package languagetest provides fixtures and conformance suites for
// expression and link adapters and their stores.
//
// Example usage:
//
//	func TestMemoryStore(t *testing.T) {
//	    languagetest.RunLinkStoreSuite(t, func(t *testing.T) languagetest.LinkStore {
//	        return links.NewMemoryStore()
//	    })
//	}
package languagetest

import (
	"sync"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// Author is the DID fixtures are authored by.
const Author = "did:key:test"

// Timestamp is the fixed timestamp of fixtures.
const Timestamp = "2026-01-02T03:04:05.000Z"

// Link returns an unsigned link expression authored by Author.
func Link(source, target, predicate string) language.LinkExpression {
	return LinkBy(Author, source, target, predicate)
}

// LinkBy returns an unsigned link expression authored by author.
func LinkBy(author language.DID, source, target, predicate string) language.LinkExpression {
	return language.LinkExpression{
		Author:    author,
		Timestamp: Timestamp,
		Data:      language.Link{Source: source, Target: target, Predicate: predicate},
		Proof:     language.Proof{Valid: true},
	}
}

// Additions returns a diff adding links.
func Additions(links ...language.LinkExpression) language.PerspectiveDiff {
	diff := language.EmptyDiff()
	diff.Additions = append(diff.Additions, links...)
	return diff
}

// Removals returns a diff removing links.
func Removals(links ...language.LinkExpression) language.PerspectiveDiff {
	diff := language.EmptyDiff()
	diff.Removals = append(diff.Removals, links...)
	return diff
}

// CountKey returns how many links share key.
func CountKey(links []language.LinkExpression, key language.LinkKey) int {
	n := 0
	for _, l := range links {
		if l.Data.Key() == key {
			n++
		}
	}
	return n
}

// Recorder collects observer callbacks. Register OnDiff and OnState with
// AddCallback and AddSyncStateChangeCallback.
type Recorder struct {
	mu     sync.Mutex
	diffs  []language.PerspectiveDiff
	states []language.SyncState
}

// OnDiff records a diff notification.
func (r *Recorder) OnDiff(diff language.PerspectiveDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, diff)
}

// OnState records a sync state notification.
func (r *Recorder) OnState(state language.SyncState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

// Diffs returns the recorded diffs.
func (r *Recorder) Diffs() []language.PerspectiveDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]language.PerspectiveDiff(nil), r.diffs...)
}

// States returns the recorded sync states.
func (r *Recorder) States() []language.SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]language.SyncState(nil), r.states...)
}
