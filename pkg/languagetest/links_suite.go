// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package languagetest

import (
	"context"
	"strconv"
	"testing"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// LinkStore is the storage contract behind a link sync adapter.
type LinkStore interface {
	Links(ctx context.Context) ([]language.LinkExpression, error)
	Revision(ctx context.Context) (uint64, error)
	Cursor(ctx context.Context) (uint64, error)
	Commit(ctx context.Context, diff language.PerspectiveDiff) (uint64, error)
	Merge(ctx context.Context, diff language.PerspectiveDiff, cursor uint64) (uint64, error)
}

// RunLinkStoreSuite checks the store contract against fresh stores
// returned by newStore.
func RunLinkStoreSuite(t *testing.T, newStore func(t *testing.T) LinkStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("starts empty at revision zero", func(t *testing.T) {
		store := newStore(t)
		links, err := store.Links(ctx)
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 0 {
			t.Fatalf("expected no links, got %d", len(links))
		}
		rev, err := store.Revision(ctx)
		if err != nil || rev != 0 {
			t.Fatalf("expected revision 0, got %d (%v)", rev, err)
		}
		cursor, err := store.Cursor(ctx)
		if err != nil || cursor != 0 {
			t.Fatalf("expected cursor 0, got %d (%v)", cursor, err)
		}
	})

	t.Run("commit appends in order and advances", func(t *testing.T) {
		store := newStore(t)
		a, b := Link("a", "b", ""), Link("b", "c", "knows")
		rev, err := store.Commit(ctx, Additions(a, b))
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if rev != 1 {
			t.Fatalf("expected revision 1, got %d", rev)
		}
		links, err := store.Links(ctx)
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 2 || links[0] != a || links[1] != b {
			t.Fatalf("unexpected links %+v", links)
		}
	})

	t.Run("removal drops only the first structural match", func(t *testing.T) {
		store := newStore(t)
		first := LinkBy("did:key:one", "a", "b", "p")
		second := LinkBy("did:key:two", "a", "b", "p")
		if _, err := store.Commit(ctx, Additions(first, second)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if _, err := store.Commit(ctx, Removals(Link("a", "b", "p"))); err != nil {
			t.Fatalf("remove: %v", err)
		}
		links, err := store.Links(ctx)
		if err != nil {
			t.Fatalf("links: %v", err)
		}
		if len(links) != 1 || links[0] != second {
			t.Fatalf("expected only the second link to remain, got %+v", links)
		}
	})

	t.Run("removing an absent link is a no-op that still advances", func(t *testing.T) {
		store := newStore(t)
		kept := Link("a", "b", "")
		if _, err := store.Commit(ctx, Additions(kept)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		rev, err := store.Commit(ctx, Removals(Link("x", "y", "")))
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if rev != 2 {
			t.Fatalf("expected revision 2, got %d", rev)
		}
		links, _ := store.Links(ctx)
		if len(links) != 1 || links[0] != kept {
			t.Fatalf("expected links unchanged, got %+v", links)
		}
	})

	t.Run("merge advances once and stores the cursor", func(t *testing.T) {
		store := newStore(t)
		rev, err := store.Merge(ctx, language.EmptyDiff(), 4)
		if err != nil {
			t.Fatalf("merge empty: %v", err)
		}
		if rev != 0 {
			t.Fatalf("empty merge must not advance, got %d", rev)
		}
		rev, err = store.Merge(ctx, Additions(Link("a", "b", ""), Link("c", "d", "")), 9)
		if err != nil {
			t.Fatalf("merge: %v", err)
		}
		if rev != 1 {
			t.Fatalf("expected revision 1, got %d", rev)
		}
		cursor, err := store.Cursor(ctx)
		if err != nil || cursor != 9 {
			t.Fatalf("expected cursor 9, got %d (%v)", cursor, err)
		}
	})
}

// RunLinkSyncAdapterSuite checks the adapter contract against fresh
// adapters with no neighbourhood.
func RunLinkSyncAdapterSuite(t *testing.T, newAdapter func(t *testing.T) language.LinkSyncAdapter) {
	t.Helper()
	ctx := context.Background()

	t.Run("writable and public", func(t *testing.T) {
		adapter := newAdapter(t)
		if !adapter.Writable() || !adapter.Public() {
			t.Fatalf("expected writable and public adapter")
		}
	})

	t.Run("no others without neighbourhood", func(t *testing.T) {
		others, err := newAdapter(t).Others(ctx)
		if err != nil {
			t.Fatalf("others: %v", err)
		}
		if len(others) != 0 {
			t.Fatalf("expected no others, got %v", others)
		}
	})

	t.Run("render includes committed link", func(t *testing.T) {
		adapter := newAdapter(t)
		link := Link("a", "b", "p")
		if _, err := adapter.Commit(ctx, Additions(link)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		perspective, err := adapter.Render(ctx)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if CountKey(perspective.Links, link.Data.Key()) != 1 {
			t.Fatalf("expected link in perspective, got %+v", perspective.Links)
		}
	})

	t.Run("removal clears committed link", func(t *testing.T) {
		adapter := newAdapter(t)
		link := Link("a", "b", "p")
		if _, err := adapter.Commit(ctx, Additions(link)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if _, err := adapter.Commit(ctx, Removals(link)); err != nil {
			t.Fatalf("remove: %v", err)
		}
		perspective, err := adapter.Render(ctx)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if CountKey(perspective.Links, link.Data.Key()) != 0 {
			t.Fatalf("expected link removed, got %+v", perspective.Links)
		}
	})

	t.Run("non-matching removal is a no-op", func(t *testing.T) {
		adapter := newAdapter(t)
		link := Link("a", "b", "")
		if _, err := adapter.Commit(ctx, Additions(link)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if _, err := adapter.Commit(ctx, Removals(Link("a", "b", "other"))); err != nil {
			t.Fatalf("remove: %v", err)
		}
		perspective, _ := adapter.Render(ctx)
		if len(perspective.Links) != 1 {
			t.Fatalf("expected one link, got %+v", perspective.Links)
		}
	})

	t.Run("each commit advances the revision", func(t *testing.T) {
		adapter := newAdapter(t)
		prev, err := adapter.CurrentRevision(ctx)
		if err != nil {
			t.Fatalf("revision: %v", err)
		}
		for i := 0; i < 3; i++ {
			rev, err := adapter.Commit(ctx, Additions(Link("a", strconv.Itoa(i), "")))
			if err != nil {
				t.Fatalf("commit: %v", err)
			}
			if !revisionAfter(rev, prev) {
				t.Fatalf("revision %q does not advance past %q", rev, prev)
			}
			current, _ := adapter.CurrentRevision(ctx)
			if current != rev {
				t.Fatalf("current revision %q, commit returned %q", current, rev)
			}
			prev = rev
		}
	})

	t.Run("render returns a copy", func(t *testing.T) {
		adapter := newAdapter(t)
		if _, err := adapter.Commit(ctx, Additions(Link("a", "b", ""))); err != nil {
			t.Fatalf("commit: %v", err)
		}
		perspective, _ := adapter.Render(ctx)
		perspective.Links[0].Data.Source = "mutated"
		again, _ := adapter.Render(ctx)
		if again.Links[0].Data.Source != "a" {
			t.Fatalf("render exposed internal state")
		}
	})

	t.Run("sync without neighbourhood is empty", func(t *testing.T) {
		adapter := newAdapter(t)
		diff, err := adapter.Sync(ctx)
		if err != nil {
			t.Fatalf("sync: %v", err)
		}
		if !diff.Empty() {
			t.Fatalf("expected empty diff, got %+v", diff)
		}
	})
}

// revisionAfter compares integer revisions numerically and anything else
// by inequality.
func revisionAfter(next, prev string) bool {
	n, errN := strconv.ParseUint(next, 10, 64)
	p, errP := strconv.ParseUint(prev, 10, 64)
	if errN == nil && errP == nil {
		return n > p
	}
	return next != prev
}
