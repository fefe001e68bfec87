// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/jllopis/ad4mlang/pkg/codec"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
)

// AddressScheme selects how new expressions are addressed.
type AddressScheme string

const (
	// SchemeRandom yields expr-<unix-ms>-<6 base36 chars>.
	SchemeRandom AddressScheme = "random"
	// SchemeContent yields b3-<hex BLAKE3 of the canonical CBOR of the data>.
	SchemeContent AddressScheme = "content"
)

const (
	randomPrefix  = "expr-"
	contentPrefix = "b3-"
	base36        = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLen     = 6
)

// ParseAddressScheme maps a config value to a scheme. Empty means random.
func ParseAddressScheme(s string) (AddressScheme, error) {
	switch AddressScheme(s) {
	case "", SchemeRandom:
		return SchemeRandom, nil
	case SchemeContent:
		return SchemeContent, nil
	default:
		return "", errors.New(errors.CodeInvalidInput, "unknown address scheme "+strconv.Quote(s), nil)
	}
}

// RandomAddress returns a fresh time-prefixed address.
func RandomAddress(now time.Time) language.Address {
	suffix := make([]byte, suffixLen)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return randomPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}

// ContentAddress derives the address of data from its canonical encoding.
func ContentAddress(data any) (language.Address, error) {
	encoded, err := codec.Marshal(data)
	if err != nil {
		return "", errors.New(errors.CodeCodec, "encode expression data", err)
	}
	return contentPrefix + codec.ContentDigest(encoded).Hex(), nil
}
