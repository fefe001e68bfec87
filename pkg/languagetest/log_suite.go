// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package languagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
)

// RunLogSuite checks the neighbourhood log contract against fresh, empty
// logs returned by newLog.
func RunLogSuite(t *testing.T, newLog func(t *testing.T) neighbourhood.Log) {
	t.Helper()
	ctx := context.Background()

	envelope := func(t *testing.T, author language.DID, rev string, links ...language.LinkExpression) neighbourhood.Envelope {
		t.Helper()
		env, err := neighbourhood.NewEnvelope(author, rev, Additions(links...))
		if err != nil {
			t.Fatalf("new envelope: %v", err)
		}
		return env
	}

	t.Run("empty log", func(t *testing.T) {
		log := newLog(t)
		envs, err := log.Since(ctx, 0, 0)
		if err != nil {
			t.Fatalf("since: %v", err)
		}
		if len(envs) != 0 {
			t.Fatalf("expected no envelopes, got %d", len(envs))
		}
		members, err := log.Members(ctx)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if len(members) != 0 {
			t.Fatalf("expected no members, got %v", members)
		}
	})

	t.Run("append assigns increasing sequence numbers", func(t *testing.T) {
		log := newLog(t)
		var last uint64
		for i := 0; i < 3; i++ {
			seq, err := log.Append(ctx, envelope(t, "did:key:alice", fmt.Sprint(i+1), Link("a", fmt.Sprint(i), "")))
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			if seq <= last {
				t.Fatalf("seq %d does not advance past %d", seq, last)
			}
			last = seq
		}
		if last != 3 {
			t.Fatalf("expected last seq 3, got %d", last)
		}
	})

	t.Run("append is idempotent per id", func(t *testing.T) {
		log := newLog(t)
		env := envelope(t, "did:key:alice", "1", Link("a", "b", ""))
		first, err := log.Append(ctx, env)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		again, err := log.Append(ctx, env)
		if err != nil {
			t.Fatalf("append again: %v", err)
		}
		if first != again {
			t.Fatalf("expected same seq, got %d and %d", first, again)
		}
		envs, _ := log.Since(ctx, 0, 0)
		if len(envs) != 1 {
			t.Fatalf("expected one envelope, got %d", len(envs))
		}
	})

	t.Run("since pages after the cursor", func(t *testing.T) {
		log := newLog(t)
		var ids []string
		for i := 0; i < 5; i++ {
			env := envelope(t, "did:key:bob", fmt.Sprint(i+1), Link("s", fmt.Sprint(i), "p"))
			if _, err := log.Append(ctx, env); err != nil {
				t.Fatalf("append: %v", err)
			}
			ids = append(ids, env.ID)
		}
		page, err := log.Since(ctx, 1, 2)
		if err != nil {
			t.Fatalf("since: %v", err)
		}
		if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
			t.Fatalf("unexpected page %+v", page)
		}
		if page[0].ID != ids[1] || page[0].Author != "did:key:bob" || page[0].Revision != "2" {
			t.Fatalf("unexpected envelope %+v", page[0])
		}
		diff, err := page[1].Diff()
		if err != nil {
			t.Fatalf("decode diff: %v", err)
		}
		if diff := cmp.Diff([]language.LinkExpression{Link("s", "2", "p")}, diff.Additions); diff != "" {
			t.Fatalf("payload mismatch (-want +got):\n%s", diff)
		}
		rest, _ := log.Since(ctx, 5, 0)
		if len(rest) != 0 {
			t.Fatalf("expected nothing after the head, got %d", len(rest))
		}
	})

	t.Run("members include joiners and authors", func(t *testing.T) {
		log := newLog(t)
		if err := log.Join(ctx, "did:key:zed"); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := log.Join(ctx, "did:key:zed"); err != nil {
			t.Fatalf("join twice: %v", err)
		}
		if _, err := log.Append(ctx, envelope(t, "did:key:amy", "1")); err != nil {
			t.Fatalf("append: %v", err)
		}
		members, err := log.Members(ctx)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if diff := cmp.Diff([]language.DID{"did:key:amy", "did:key:zed"}, members); diff != "" {
			t.Fatalf("members mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("append rejects anonymous envelopes", func(t *testing.T) {
		log := newLog(t)
		if _, err := log.Append(ctx, neighbourhood.Envelope{Author: "did:key:a"}); err == nil {
			t.Fatalf("expected error for envelope without id")
		}
	})
}
