// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
)

var randomAddressPattern = regexp.MustCompile(`^expr-\d+-[0-9a-z]{6}$`)

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
}

func TestRandomAddressShape(t *testing.T) {
	addr := RandomAddress(fixedClock())
	if !randomAddressPattern.MatchString(addr) {
		t.Fatalf("unexpected address %q", addr)
	}
	if !strings.HasPrefix(addr, "expr-1772600767008-") {
		t.Fatalf("expected unix-ms prefix, got %q", addr)
	}
}

func TestContentAddressDeterministic(t *testing.T) {
	a1, err := ContentAddress(`{"a":1}`)
	if err != nil {
		t.Fatalf("content address: %v", err)
	}
	a2, _ := ContentAddress(`{"a":1}`)
	a3, _ := ContentAddress(`{"a":2}`)
	if a1 != a2 {
		t.Fatalf("same content must map to the same address: %s vs %s", a1, a2)
	}
	if a1 == a3 {
		t.Fatalf("different content must map to different addresses")
	}
	if !strings.HasPrefix(a1, "b3-") || len(a1) != len("b3-")+64 {
		t.Fatalf("unexpected content address %q", a1)
	}
}

func TestParseAddressScheme(t *testing.T) {
	for in, want := range map[string]AddressScheme{"": SchemeRandom, "random": SchemeRandom, "content": SchemeContent} {
		got, err := ParseAddressScheme(in)
		if err != nil || got != want {
			t.Errorf("ParseAddressScheme(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAddressScheme("sha1"); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCreatePublicScaffoldDefaults(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(nil, WithClock(fixedClock), WithMetrics(nil))

	addr, err := adapter.Putter().CreatePublic(ctx, map[string]any{"hello": "world"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !randomAddressPattern.MatchString(addr) {
		t.Fatalf("unexpected address %q", addr)
	}

	expr, err := adapter.Get(ctx, addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := language.Expression{
		Author:    agent.DefaultDID,
		Timestamp: "2026-03-04T05:06:07.008Z",
		Data:      `{"hello":"world"}`,
		Proof:     language.Proof{Key: "", Signature: "", Valid: true, Invalid: false},
	}
	if *expr != want {
		t.Fatalf("got %+v, want %+v", *expr, want)
	}
}

func TestContentSchemeKeepsFirst(t *testing.T) {
	ctx := context.Background()
	calls := 0
	clock := func() time.Time {
		calls++
		return fixedClock().Add(time.Duration(calls) * time.Second)
	}
	adapter := NewAdapter(agent.NewStatic("did:key:alice"),
		WithAddressScheme(SchemeContent), WithClock(clock), WithMetrics(nil))

	a1, err := adapter.Putter().CreatePublic(ctx, "same")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _ := adapter.Get(ctx, a1)

	a2, err := adapter.Putter().CreatePublic(ctx, "same")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected identical content addresses, got %s and %s", a1, a2)
	}
	again, _ := adapter.Get(ctx, a2)
	if again.Timestamp != first.Timestamp {
		t.Fatalf("stored expression was replaced: %s -> %s", first.Timestamp, again.Timestamp)
	}
}

func TestVerifySignedExpression(t *testing.T) {
	ctx := context.Background()
	key, err := agent.GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store := NewMemoryStore()
	adapter := NewAdapter(key, WithStore(store), WithMetrics(nil))

	addr, err := adapter.Putter().CreatePublic(ctx, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expr, err := adapter.Verify(ctx, addr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !expr.Proof.Valid || expr.Proof.Invalid {
		t.Fatalf("expected valid proof, got %+v", expr.Proof)
	}
	if !strings.HasPrefix(expr.Proof.Key, key.DID()+"#") {
		t.Fatalf("unexpected proof key %q", expr.Proof.Key)
	}

	// Tamper with the stored copy.
	store.mu.Lock()
	tampered := store.items[addr]
	tampered.Data = "[1,2,4]"
	store.items[addr] = tampered
	store.mu.Unlock()

	expr, err = adapter.Verify(ctx, addr)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if expr.Proof.Valid || !expr.Proof.Invalid {
		t.Fatalf("expected tampered expression to be invalid, got %+v", expr.Proof)
	}

	missing, err := adapter.Verify(ctx, "expr-0-none00")
	if err != nil || missing != nil {
		t.Fatalf("expected absent expression, got %+v, %v", missing, err)
	}
}

type failingSigner struct{}

func (failingSigner) DID() language.DID { return "did:key:broken" }

func (failingSigner) Sign(context.Context, []byte) (language.Proof, error) {
	return language.Proof{}, stderrors.New("keystore locked")
}

func TestCreatePublicErrors(t *testing.T) {
	ctx := context.Background()

	adapter := NewAdapter(nil, WithMetrics(nil))
	if _, err := adapter.Putter().CreatePublic(ctx, make(chan int)); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}

	adapter = NewAdapter(failingSigner{}, WithMetrics(nil))
	if _, err := adapter.Putter().CreatePublic(ctx, "x"); !errors.IsCode(err, errors.CodeInternal) {
		t.Fatalf("expected INTERNAL_ERROR from signer, got %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "expressions.jsonl")

	adapter := NewAdapter(nil, WithStore(NewFileStore(path)), WithMetrics(nil))
	addr, err := adapter.Putter().CreatePublic(ctx, "persisted")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reopened := NewAdapter(nil, WithStore(NewFileStore(path)), WithMetrics(nil))
	expr, err := reopened.Get(ctx, addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if expr == nil || expr.Data != `"persisted"` {
		t.Fatalf("expected persisted expression, got %+v", expr)
	}
}

func TestFileStoreCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expressions.jsonl")
	good := `{"address":"a","expression":{"author":"did:key:test","timestamp":"t","data":"1","proof":{}}}` + "\n"
	if err := os.WriteFile(path, []byte("{not json}\n"+good), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := NewFileStore(path).Get(context.Background(), "a")
	if !errors.IsCode(err, errors.CodeStorage) {
		t.Fatalf("expected STORAGE_ERROR, got %v", err)
	}
}

func TestFileStoreDropsTornFinalLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "expressions.jsonl")
	good := `{"address":"a","expression":{"author":"did:key:test","timestamp":"t","data":"1","proof":{}}}` + "\n"
	if err := os.WriteFile(path, []byte(good+`{"address":"b","expre`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var logs bytes.Buffer
	store := NewFileStore(path).WithFileLogger(slog.New(slog.NewJSONHandler(&logs, nil)))
	if _, found, err := store.Get(ctx, "a"); err != nil || !found {
		t.Fatalf("get a: found=%v err=%v", found, err)
	}
	if !strings.Contains(logs.String(), "expression.store.truncated") {
		t.Fatalf("expected a truncation warning, got %q", logs.String())
	}

	inserted, err := store.Put(ctx, "b", &language.Expression{Author: "did:key:test", Timestamp: "t", Data: "2"})
	if err != nil || !inserted {
		t.Fatalf("put b: inserted=%v err=%v", inserted, err)
	}
	reopened := NewFileStore(path)
	for _, addr := range []language.Address{"a", "b"} {
		if _, found, err := reopened.Get(ctx, addr); err != nil || !found {
			t.Fatalf("reopened get %s: found=%v err=%v", addr, found, err)
		}
	}
}

func TestFileStorePutReportsWriteErrors(t *testing.T) {
	dir := t.TempDir()
	// a directory where the file should be cannot be opened for append
	path := filepath.Join(dir, "expressions.jsonl")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store := &FileStore{path: path, logger: slog.Default(), loaded: true, index: map[language.Address]language.Expression{}}
	inserted, err := store.Put(context.Background(), "a", &language.Expression{Data: "1"})
	if inserted || !errors.IsCode(err, errors.CodeStorage) {
		t.Fatalf("expected STORAGE_ERROR, got inserted=%v err=%v", inserted, err)
	}
	if _, ok := store.index["a"]; ok {
		t.Fatal("failed put must not be indexed")
	}
}

// racyStore reports the first lost addresses as taken by another writer.
type racyStore struct {
	*MemoryStore
	lose  int
	tried []language.Address
}

func (s *racyStore) Put(ctx context.Context, address language.Address, expr *language.Expression) (bool, error) {
	s.tried = append(s.tried, address)
	if len(s.tried) <= s.lose {
		return false, nil
	}
	return s.MemoryStore.Put(ctx, address, expr)
}

func TestCreateRetriesLostAddress(t *testing.T) {
	ctx := context.Background()
	store := &racyStore{MemoryStore: NewMemoryStore(), lose: 2}
	adapter := NewAdapter(nil, WithStore(store), WithMetrics(nil))

	addr, err := adapter.Putter().CreatePublic(ctx, "mine")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(store.tried) != 3 || store.tried[2] != addr {
		t.Fatalf("expected two lost addresses then %s, tried %v", addr, store.tried)
	}
	expr, err := adapter.Get(ctx, addr)
	if err != nil || expr == nil || expr.Data != `"mine"` {
		t.Fatalf("get: %+v, %v", expr, err)
	}

	store = &racyStore{MemoryStore: NewMemoryStore(), lose: maxAddressAttempts}
	adapter = NewAdapter(nil, WithStore(store), WithMetrics(nil))
	if _, err := adapter.Putter().CreatePublic(ctx, "never"); !errors.IsCode(err, errors.CodeInternal) {
		t.Fatalf("expected INTERNAL_ERROR after %d lost addresses, got %v", maxAddressAttempts, err)
	}
}

func TestConcurrentCreatesKeepEveryExpression(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := fixedClock()
	adapter := NewAdapter(nil, WithStore(store), WithMetrics(nil), WithClock(func() time.Time { return now }))

	const n = 32
	addrs := make([]language.Address, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			addr, err := adapter.Putter().CreatePublic(ctx, i)
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			addrs[i] = addr
		})
	}
	wg.Wait()

	for i, addr := range addrs {
		expr, err := adapter.Get(ctx, addr)
		if err != nil || expr == nil || expr.Data != strconv.Itoa(i) {
			t.Fatalf("create %d at %s: got %+v, %v", i, addr, expr, err)
		}
	}
}
