// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
	"github.com/jllopis/ad4mlang/pkg/resilience"
)

// Option configures the relay client.
type Option func(*Client)

// Client is a neighbourhood.Log backed by a remote relay.
type Client struct {
	conn          grpc.ClientConnInterface
	neighbourhood string
	timeout       time.Duration
	callOpts      []grpc.CallOption
	closer        func() error
}

// NewClient creates a client for neighbourhood id over an existing
// connection.
func NewClient(conn grpc.ClientConnInterface, id string, opts ...Option) *Client {
	c := &Client{
		conn:          conn,
		neighbourhood: id,
		timeout:       10 * time.Second,
		callOpts:      []grpc.CallOption{grpc.CallContentSubtype(CodecName)},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Dial connects to the relay at target and returns a client that owns the
// connection.
func Dial(target, id string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.New(errors.CodeNetwork, "dial relay", err).WithContext("target", target)
	}
	c := NewClient(conn, id, opts...)
	c.closer = conn.Close
	return c, nil
}

// WithTimeout sets a per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBearerToken sends token as a bearer token on every call.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token == "" {
			return
		}
		c.callOpts = append(c.callOpts, grpc.PerRPCCredentials(bearerCredentials{token: token}))
	}
}

// Close releases the connection when the client was created by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// invoke calls method within the per-request timeout. A call cut short by
// that timeout fails with a recoverable TIMEOUT.
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		err := c.conn.Invoke(withTraceMetadata(ctx), method, req, resp, c.callOpts...)
		return fromStatus(err, method)
	})
}

// Join implements neighbourhood.Log.
func (c *Client) Join(ctx context.Context, member language.DID) error {
	return c.invoke(ctx, joinMethod, &JoinRequest{Neighbourhood: c.neighbourhood, Member: member}, &JoinResponse{})
}

// Append implements neighbourhood.Log.
func (c *Client) Append(ctx context.Context, env neighbourhood.Envelope) (uint64, error) {
	resp := &AppendResponse{}
	if err := c.invoke(ctx, appendMethod, &AppendRequest{Neighbourhood: c.neighbourhood, Envelope: env}, resp); err != nil {
		return 0, err
	}
	return resp.Seq, nil
}

// Since implements neighbourhood.Log.
func (c *Client) Since(ctx context.Context, after uint64, limit int) ([]neighbourhood.Envelope, error) {
	resp := &SinceResponse{}
	req := &SinceRequest{Neighbourhood: c.neighbourhood, After: after, Limit: limit}
	if err := c.invoke(ctx, sinceMethod, req, resp); err != nil {
		return nil, err
	}
	if resp.Envelopes == nil {
		return []neighbourhood.Envelope{}, nil
	}
	return resp.Envelopes, nil
}

// Members implements neighbourhood.Log.
func (c *Client) Members(ctx context.Context) ([]language.DID, error) {
	resp := &MembersResponse{}
	if err := c.invoke(ctx, membersMethod, &MembersRequest{Neighbourhood: c.neighbourhood}, resp); err != nil {
		return nil, err
	}
	if resp.Members == nil {
		return []language.DID{}, nil
	}
	return resp.Members, nil
}

var _ neighbourhood.Log = (*Client)(nil)
