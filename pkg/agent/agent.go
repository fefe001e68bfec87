// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent provides the identities that author and sign expressions.
package agent

import (
	"context"
	"time"

	"github.com/jllopis/ad4mlang/pkg/codec"
	"github.com/jllopis/ad4mlang/pkg/language"
)

// DefaultDID is the author stamped on expressions when the host supplies
// no agent.
const DefaultDID = "did:key:test"

// signingPayload is the canonical form covered by a proof.
type signingPayload struct {
	Author    string `cbor:"author"`
	Timestamp string `cbor:"timestamp"`
	Data      any    `cbor:"data"`
}

// SigningPayload returns the canonical bytes a proof signs for an
// expression with the given author, timestamp and data.
func SigningPayload(author language.DID, timestamp string, data any) ([]byte, error) {
	return codec.Marshal(signingPayload{Author: author, Timestamp: timestamp, Data: data})
}

// NewLink authors link as svc at now and signs it.
func NewLink(ctx context.Context, svc language.AgentService, link language.Link, now time.Time) (language.LinkExpression, error) {
	expr := language.LinkExpression{
		Author:    svc.DID(),
		Timestamp: language.Timestamp(now),
		Data:      link,
	}
	payload, err := SigningPayload(expr.Author, expr.Timestamp, expr.Data)
	if err != nil {
		return language.LinkExpression{}, err
	}
	expr.Proof, err = svc.Sign(ctx, payload)
	if err != nil {
		return language.LinkExpression{}, err
	}
	return expr, nil
}

// Static is an unsigned identity. Its proofs carry no key or signature and
// are reported valid, which is what hosts get from the scaffold language.
type Static struct {
	did language.DID
}

// NewStatic returns a Static agent. An empty did falls back to DefaultDID.
func NewStatic(did language.DID) *Static {
	if did == "" {
		did = DefaultDID
	}
	return &Static{did: did}
}

// DID implements language.AgentService.
func (s *Static) DID() language.DID {
	return s.did
}

// Sign implements language.AgentService.
func (s *Static) Sign(context.Context, []byte) (language.Proof, error) {
	return language.Proof{Valid: true, Invalid: false}, nil
}
