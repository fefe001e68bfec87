// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package languagetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// ExpressionStore is the storage contract behind an expression adapter.
type ExpressionStore interface {
	Get(ctx context.Context, address language.Address) (*language.Expression, bool, error)
	Put(ctx context.Context, address language.Address, expr *language.Expression) (bool, error)
}

// RunExpressionStoreSuite checks the store contract against fresh stores
// returned by newStore.
func RunExpressionStoreSuite(t *testing.T, newStore func(t *testing.T) ExpressionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing address is absent", func(t *testing.T) {
		store := newStore(t)
		expr, found, err := store.Get(ctx, "expr-0-missing")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if found || expr != nil {
			t.Fatalf("expected absent, got %+v", expr)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		store := newStore(t)
		want := &language.Expression{
			Author:    Author,
			Timestamp: Timestamp,
			Data:      `{"title":"hello"}`,
			Proof:     language.Proof{Key: "k", Signature: "s", Valid: true},
		}
		if inserted, err := store.Put(ctx, "a1", want); err != nil || !inserted {
			t.Fatalf("put: inserted=%v err=%v", inserted, err)
		}
		got, found, err := store.Get(ctx, "a1")
		if err != nil || !found {
			t.Fatalf("get: found=%v err=%v", found, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("expression mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("put keeps first expression", func(t *testing.T) {
		store := newStore(t)
		first := &language.Expression{Author: Author, Timestamp: Timestamp, Data: `"first"`}
		second := &language.Expression{Author: "did:key:other", Timestamp: Timestamp, Data: `"second"`}
		if inserted, err := store.Put(ctx, "a1", first); err != nil || !inserted {
			t.Fatalf("put first: inserted=%v err=%v", inserted, err)
		}
		if inserted, err := store.Put(ctx, "a1", second); err != nil || inserted {
			t.Fatalf("put second: inserted=%v err=%v", inserted, err)
		}
		got, _, err := store.Get(ctx, "a1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Data != `"first"` || got.Author != Author {
			t.Fatalf("expected first expression to be kept, got %+v", got)
		}
	})
}

// RunExpressionAdapterSuite checks the adapter contract against fresh
// adapters returned by newAdapter.
func RunExpressionAdapterSuite(t *testing.T, newAdapter func(t *testing.T) language.ExpressionAdapter) {
	t.Helper()
	ctx := context.Background()

	t.Run("unknown address is absent", func(t *testing.T) {
		adapter := newAdapter(t)
		expr, err := adapter.Get(ctx, "expr-0-unknown")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if expr != nil {
			t.Fatalf("expected nil expression, got %+v", expr)
		}
	})

	t.Run("store then retrieve", func(t *testing.T) {
		adapter := newAdapter(t)
		payload := map[string]any{"title": "hello", "n": 3}
		address, err := adapter.Putter().CreatePublic(ctx, payload)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if address == "" {
			t.Fatalf("expected non-empty address")
		}
		expr, err := adapter.Get(ctx, address)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if expr == nil {
			t.Fatalf("expected expression at %s", address)
		}
		data, ok := expr.Data.(string)
		if !ok {
			t.Fatalf("expected JSON string data, got %T", expr.Data)
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if diff := cmp.Diff(map[string]any{"title": "hello", "n": float64(3)}, decoded); diff != "" {
			t.Fatalf("payload mismatch (-want +got):\n%s", diff)
		}
		if expr.Author == "" {
			t.Fatalf("expected author to be stamped")
		}
		if _, err := time.Parse(language.TimestampLayout, expr.Timestamp); err != nil {
			t.Fatalf("timestamp %q is not ISO-8601: %v", expr.Timestamp, err)
		}
		if !expr.Proof.Valid || expr.Proof.Invalid {
			t.Fatalf("expected a valid proof, got %+v", expr.Proof)
		}
	})

	t.Run("distinct payloads get distinct addresses", func(t *testing.T) {
		adapter := newAdapter(t)
		a1, err := adapter.Putter().CreatePublic(ctx, "one")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		a2, err := adapter.Putter().CreatePublic(ctx, "two")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if a1 == a2 {
			t.Fatalf("expected distinct addresses, both %s", a1)
		}
	})

	t.Run("unencodable data is rejected", func(t *testing.T) {
		adapter := newAdapter(t)
		if _, err := adapter.Putter().CreatePublic(ctx, func() {}); err == nil {
			t.Fatalf("expected error for unencodable data")
		}
	})
}
