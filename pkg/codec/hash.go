// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// Hex returns the lowercase hex form of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

type domainKey [32]byte

// Domain keys keep expression addresses and signing digests from ever
// colliding for the same input bytes. Changing them invalidates every
// address and signature already issued.
var (
	contentDomainKey = domainKey{
		'a', 'd', '4', 'm', '.', 'e', 'x', 'p', 'r', 'e', 's', 's', 'i', 'o', 'n', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	signingDomainKey = domainKey{
		'a', 'd', '4', 'm', '.', 'p', 'r', 'o', 'o', 'f', '.',
		's', 'i', 'g', 'n', 'i', 'n', 'g', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// ContentDigest hashes stored content for content addressing.
func ContentDigest(data []byte) Digest {
	return keyedHash(contentDomainKey, data)
}

// SigningDigest hashes a signing payload.
func SigningDigest(data []byte) Digest {
	return keyedHash(signingDomainKey, data)
}

func keyedHash(key domainKey, data []byte) Digest {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only fails for keys that are not 32 bytes.
		panic("codec: blake3 keyed hasher: " + err.Error())
	}
	_, _ = hasher.Write(data)
	var out Digest
	copy(out[:], hasher.Sum(nil))
	return out
}
