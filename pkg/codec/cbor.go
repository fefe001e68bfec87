// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the canonical encodings shared by the language
// adapters: deterministic CBOR, zstd payload compression and BLAKE3
// digests.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// logical value always produces the same bytes. Content addresses and
// signatures depend on that.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	// Envelope timestamps keep sub-second precision across the relay.
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Expression payloads are decoded into any; keep them compatible
		// with encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
