// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/ad4mlang/pkg/language"
)

func TestStaticAgent(t *testing.T) {
	a := NewStatic("")
	if a.DID() != DefaultDID {
		t.Fatalf("expected default did, got %s", a.DID())
	}
	proof, err := a.Sign(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := language.Proof{Key: "", Signature: "", Valid: true, Invalid: false}
	if proof != want {
		t.Fatalf("expected scaffold proof, got %+v", proof)
	}
}

func TestKeyAgentDID(t *testing.T) {
	a, err := GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(a.DID(), "did:key:z6Mk") {
		t.Fatalf("expected ed25519 did:key, got %s", a.DID())
	}
	pub, err := PublicKeyFromDID(a.DID())
	if err != nil {
		t.Fatalf("public key from did: %v", err)
	}
	if !pub.Equal(a.priv.Public()) {
		t.Fatal("expected did to round-trip to the agent public key")
	}
}

func TestSignAndVerify(t *testing.T) {
	ctx := context.Background()
	a, err := GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ts := "2026-01-01T00:00:00.000Z"
	data := `{"text":"hello"}`

	payload, err := SigningPayload(a.DID(), ts, data)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	proof, err := a.Sign(ctx, payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	expr := &language.Expression{Author: a.DID(), Timestamp: ts, Data: data, Proof: proof}
	if got := VerifyExpression(expr); !got.Proof.Valid || got.Proof.Invalid {
		t.Fatalf("expected valid proof, got %+v", got.Proof)
	}

	tampered := &language.Expression{Author: a.DID(), Timestamp: ts, Data: `{"text":"bye"}`, Proof: proof}
	if got := VerifyExpression(tampered); got.Proof.Valid || !got.Proof.Invalid {
		t.Fatalf("expected invalid proof for tampered data, got %+v", got.Proof)
	}
}

func TestVerifyLink(t *testing.T) {
	ctx := context.Background()
	a, err := GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	link := language.LinkExpression{
		Author:    a.DID(),
		Timestamp: "2026-01-01T00:00:00.000Z",
		Data:      language.Link{Source: "expr://a", Target: "expr://b", Predicate: "knows"},
	}
	payload, err := SigningPayload(link.Author, link.Timestamp, link.Data)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	link.Proof, _ = a.Sign(ctx, payload)

	if got := VerifyLink(link); !got.Proof.Valid {
		t.Fatalf("expected valid link proof")
	}
	other, _ := GenerateKeyAgent()
	link.Author = other.DID()
	if got := VerifyLink(link); got.Proof.Valid {
		t.Fatalf("expected proof to fail for a different author")
	}
}

func TestVerifyUnsignedProof(t *testing.T) {
	ctx := context.Background()
	keyed, err := GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	signed, err := NewLink(ctx, keyed, language.Link{Source: "expr://a", Target: "expr://b"}, time.Now())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	stripped := signed
	stripped.Data.Target = "expr://evil"
	stripped.Proof = language.Proof{}

	tests := []struct {
		name  string
		link  language.LinkExpression
		valid bool
	}{
		{"signed by keyed author", signed, true},
		{"keyed author with signature stripped", stripped, false},
		{"scaffold author without key", language.LinkExpression{
			Author: DefaultDID, Timestamp: signed.Timestamp, Data: signed.Data,
		}, true},
		{"scaffold author with stray signature", language.LinkExpression{
			Author: DefaultDID, Timestamp: signed.Timestamp, Data: signed.Data,
			Proof: language.Proof{Key: DefaultDID + "#k", Signature: "00"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyLink(tt.link).Proof
			if got.Valid != tt.valid || got.Invalid == tt.valid {
				t.Errorf("proof = %+v, want valid=%v", got, tt.valid)
			}
		})
	}
}

func TestNewLink(t *testing.T) {
	ctx := context.Background()
	a, err := GenerateKeyAgent()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	now := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	link, err := NewLink(ctx, a, language.Link{Source: "a", Target: "b"}, now)
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if link.Author != a.DID() || link.Timestamp != "2026-03-04T05:06:07.008Z" {
		t.Fatalf("unexpected link %+v", link)
	}
	if got := VerifyLink(link); !got.Proof.Valid || got.Proof.Invalid {
		t.Fatalf("expected signed link to verify, got %+v", got.Proof)
	}

	static, err := NewLink(ctx, NewStatic(""), language.Link{Source: "a", Target: "b"}, now)
	if err != nil {
		t.Fatalf("new static link: %v", err)
	}
	if static.Author != DefaultDID || static.Proof != (language.Proof{Valid: true}) {
		t.Fatalf("unexpected static link %+v", static)
	}
}

func TestVerifyUnsignedIsValid(t *testing.T) {
	got := Verify(DefaultDID, "t", "data", language.Proof{})
	if !got.Valid || got.Invalid {
		t.Fatalf("expected unsigned proof to be valid, got %+v", got)
	}
}

func TestLoadOrCreateKeyAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "agent.key")

	first, err := LoadOrCreateKeyAgent(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := LoadOrCreateKeyAgent(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first.DID() != second.DID() {
		t.Fatalf("expected same identity after reload: %s vs %s", first.DID(), second.DID())
	}

	if err := os.WriteFile(path, []byte("zz"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOrCreateKeyAgent(path); err == nil {
		t.Fatal("expected error for corrupt key file")
	}
}

func TestPublicKeyFromDIDRejects(t *testing.T) {
	for _, did := range []string{"did:web:example.com", "did:key:z0OIl", DefaultDID} {
		if _, err := PublicKeyFromDID(did); err == nil {
			t.Errorf("expected error for %q", did)
		}
	}
}
