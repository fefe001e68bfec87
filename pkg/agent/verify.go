// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/jllopis/ad4mlang/pkg/codec"
	"github.com/jllopis/ad4mlang/pkg/language"
)

// Verify recomputes the Valid/Invalid flags of a proof over the given
// author, timestamp and data. A proof with neither key nor signature is
// an unsigned scaffold proof; it is valid only for authors without a
// resolvable did:key, since a keyed author always signs.
func Verify(author language.DID, timestamp string, data any, proof language.Proof) language.Proof {
	out := proof
	ok := verify(author, timestamp, data, proof)
	out.Valid = ok
	out.Invalid = !ok
	return out
}

// VerifyExpression verifies an expression's proof in place and returns it.
func VerifyExpression(expr *language.Expression) *language.Expression {
	if expr == nil {
		return nil
	}
	expr.Proof = Verify(expr.Author, expr.Timestamp, expr.Data, expr.Proof)
	return expr
}

// VerifyLink verifies a link expression's proof.
func VerifyLink(link language.LinkExpression) language.LinkExpression {
	link.Proof = Verify(link.Author, link.Timestamp, link.Data, link.Proof)
	return link
}

func verify(author language.DID, timestamp string, data any, proof language.Proof) bool {
	pub, err := PublicKeyFromDID(author)
	if proof.Key == "" && proof.Signature == "" {
		return err != nil
	}
	if err != nil || !strings.HasPrefix(proof.Key, author+"#") {
		return false
	}
	sig, err := hex.DecodeString(proof.Signature)
	if err != nil {
		return false
	}
	payload, err := SigningPayload(author, timestamp, data)
	if err != nil {
		return false
	}
	digest := codec.SigningDigest(payload)
	return ed25519.Verify(pub, digest[:], sig)
}
