// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package language

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEmptyDiffJSON(t *testing.T) {
	data, err := json.Marshal(EmptyDiff())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"additions":[],"removals":[]}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if !EmptyDiff().Empty() {
		t.Fatal("expected empty diff")
	}
}

func TestLinkExpressionJSONShape(t *testing.T) {
	link := LinkExpression{
		Author:    "did:key:test",
		Timestamp: "2026-01-01T00:00:00.000Z",
		Data:      Link{Source: "expr://a", Target: "expr://b"},
		Proof:     Proof{Valid: true},
	}
	data, err := json.Marshal(link)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"author"`, `"timestamp"`, `"source":"expr://a"`, `"proof":{"key":"","signature":"","valid":true,"invalid":false}`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in %s", want, got)
		}
	}
	if strings.Contains(got, "predicate") {
		t.Errorf("expected empty predicate to be omitted: %s", got)
	}
}

func TestLinkKey(t *testing.T) {
	a := Link{Source: "s", Target: "t", Predicate: "p"}
	b := Link{Source: "s", Target: "t", Predicate: "p"}
	c := Link{Source: "s", Target: "t"}
	if a.Key() != b.Key() {
		t.Fatal("expected equal keys")
	}
	if a.Key() == c.Key() {
		t.Fatal("expected predicate to be part of the key")
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 891_000_000, time.FixedZone("x", 3600))
	if got := Timestamp(ts); got != "2026-03-04T04:06:07.891Z" {
		t.Fatalf("unexpected timestamp %s", got)
	}
}

func TestLanguageCloseOrder(t *testing.T) {
	var order []int
	lang := &Language{Name: DefaultName}
	lang.OnClose(func() error { order = append(order, 1); return nil })
	lang.OnClose(func() error { order = append(order, 2); return errors.New("boom") })

	err := lang.Close()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined close error, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse order, got %v", order)
	}
	if err := lang.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestNoInteractions(t *testing.T) {
	got := NoInteractions(&Expression{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
