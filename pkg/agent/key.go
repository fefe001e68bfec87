// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/jllopis/ad4mlang/pkg/codec"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
)

const didKeyPrefix = "did:key:z"

// ed25519-pub multicodec varint.
var ed25519Multicodec = []byte{0xed, 0x01}

// KeyAgent signs proofs with an ed25519 key and is identified by the
// matching did:key.
type KeyAgent struct {
	priv  ed25519.PrivateKey
	did   language.DID
	keyID string
}

// NewKeyAgent wraps an existing private key.
func NewKeyAgent(priv ed25519.PrivateKey) *KeyAgent {
	pub := priv.Public().(ed25519.PublicKey)
	fingerprint := "z" + base58.Encode(append(append([]byte{}, ed25519Multicodec...), pub...))
	did := "did:key:" + fingerprint
	return &KeyAgent{
		priv:  priv,
		did:   did,
		keyID: did + "#" + fingerprint,
	}
}

// GenerateKeyAgent creates an agent with a fresh random key.
func GenerateKeyAgent() (*KeyAgent, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "generate ed25519 key", err)
	}
	return NewKeyAgent(priv), nil
}

// LoadOrCreateKeyAgent reads a hex-encoded ed25519 seed from path, creating
// the file with a new seed when it does not exist.
func LoadOrCreateKeyAgent(path string) (*KeyAgent, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, errors.New(errors.CodeInvalidInput, "key file must hold a hex ed25519 seed", err).
				WithContext("path", path)
		}
		return NewKeyAgent(ed25519.NewKeyFromSeed(seed)), nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.New(errors.CodeStorage, "read key file", err).WithContext("path", path)
	}

	agent, err := GenerateKeyAgent()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.New(errors.CodeStorage, "create key directory", err).WithContext("path", path)
	}
	seed := hex.EncodeToString(agent.priv.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0o600); err != nil {
		return nil, errors.New(errors.CodeStorage, "write key file", err).WithContext("path", path)
	}
	return agent, nil
}

// DID implements language.AgentService.
func (a *KeyAgent) DID() language.DID {
	return a.did
}

// Sign implements language.AgentService.
func (a *KeyAgent) Sign(_ context.Context, payload []byte) (language.Proof, error) {
	digest := codec.SigningDigest(payload)
	sig := ed25519.Sign(a.priv, digest[:])
	return language.Proof{
		Key:       a.keyID,
		Signature: hex.EncodeToString(sig),
		Valid:     true,
		Invalid:   false,
	}, nil
}

// PublicKeyFromDID extracts the ed25519 key behind a did:key identifier.
func PublicKeyFromDID(did language.DID) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("not a base58 did:key: %q", did)
	}
	raw, err := base58.Decode(strings.TrimPrefix(did, didKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode did:key: %w", err)
	}
	if len(raw) != len(ed25519Multicodec)+ed25519.PublicKeySize ||
		raw[0] != ed25519Multicodec[0] || raw[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("did:key is not an ed25519 key: %q", did)
	}
	return ed25519.PublicKey(raw[len(ed25519Multicodec):]), nil
}
