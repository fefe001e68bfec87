// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"google.golang.org/grpc/encoding"

	"github.com/jllopis/ad4mlang/pkg/codec"
)

// CodecName is the gRPC content subtype the relay speaks.
const CodecName = "cbor"

func init() {
	encoding.RegisterCodec(cborCodec{})
}

// cborCodec carries relay messages as canonical CBOR instead of protobuf.
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return CodecName
}
