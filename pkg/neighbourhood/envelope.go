// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package neighbourhood replicates perspective diffs between the agents of
// a neighbourhood through an append-only log of envelopes.
package neighbourhood

import (
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/ad4mlang/pkg/codec"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
)

// Envelope is one committed diff as published to a neighbourhood.
type Envelope struct {
	// ID is unique per published diff; appending the same ID twice is a no-op.
	ID     string       `cbor:"id" json:"id"`
	Author language.DID `cbor:"author" json:"author"`
	// Revision is the author's revision after the commit.
	Revision string `cbor:"revision" json:"revision"`
	// Seq is the position in the log, assigned by Append.
	Seq uint64 `cbor:"seq" json:"seq"`
	// Payload is the packed PerspectiveDiff (see EncodeDiff).
	Payload   []byte    `cbor:"payload" json:"payload"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// NewEnvelope packs diff into a fresh envelope authored by author.
func NewEnvelope(author language.DID, revision string, diff language.PerspectiveDiff) (Envelope, error) {
	payload, err := EncodeDiff(diff)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.NewString(),
		Author:    author,
		Revision:  revision,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Diff unpacks the envelope payload.
func (e Envelope) Diff() (language.PerspectiveDiff, error) {
	return DecodeDiff(e.Payload)
}

// EncodeDiff returns the zstd-compressed canonical CBOR of diff.
func EncodeDiff(diff language.PerspectiveDiff) ([]byte, error) {
	payload, err := codec.Pack(diff)
	if err != nil {
		return nil, errors.New(errors.CodeCodec, "encode perspective diff", err)
	}
	return payload, nil
}

// DecodeDiff inverts EncodeDiff.
func DecodeDiff(payload []byte) (language.PerspectiveDiff, error) {
	var diff language.PerspectiveDiff
	if err := codec.Unpack(payload, &diff); err != nil {
		return language.PerspectiveDiff{}, errors.New(errors.CodeCodec, "decode perspective diff", err)
	}
	return diff, nil
}

func validateEnvelope(env Envelope) error {
	if env.ID == "" {
		return errors.New(errors.CodeInvalidInput, "envelope id is empty", nil)
	}
	if env.Author == "" {
		return errors.New(errors.CodeInvalidInput, "envelope author is empty", nil).
			WithContext("envelope_id", env.ID)
	}
	return nil
}
