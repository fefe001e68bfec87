// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": "x", "c": []any{1, 2}}
	b := map[string]any{"c": []any{1, 2}, "a": "x", "b": 1}

	ea, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	eb, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}
	if !bytes.Equal(ea, eb) {
		t.Fatalf("expected identical encodings for equal maps")
	}
}

func TestUnmarshalAnyMapType(t *testing.T) {
	raw, err := Marshal(map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", out)
	}
	if m["text"] != "hello" {
		t.Fatalf("expected hello, got %v", m["text"])
	}
}

func TestPackUnpack(t *testing.T) {
	type payload struct {
		Source string `cbor:"source"`
		Target string `cbor:"target"`
	}
	in := payload{Source: "expr://a", Target: "expr://b"}

	packed, err := Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	var out payload
	if err := Unpack(packed, &out); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not a zstd frame")); err == nil {
		t.Fatal("expected error for invalid frame")
	}
}

func TestDigestDomains(t *testing.T) {
	data := []byte("same bytes")
	content := ContentDigest(data)
	signing := SigningDigest(data)

	if content == signing {
		t.Fatal("expected domain separation between content and signing digests")
	}
	if ContentDigest(data) != content {
		t.Fatal("expected stable content digest")
	}
	if len(content.Hex()) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(content.Hex()))
	}
}
