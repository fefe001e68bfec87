// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay serves neighbourhood logs over gRPC so agents in different
// processes can replicate links through one relay.
package relay

import (
	"context"

	"google.golang.org/grpc"

	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ad4m.neighbourhood.v1.Relay"

const (
	joinMethod    = "/" + ServiceName + "/Join"
	appendMethod  = "/" + ServiceName + "/Append"
	sinceMethod   = "/" + ServiceName + "/Since"
	membersMethod = "/" + ServiceName + "/Members"
)

type JoinRequest struct {
	Neighbourhood string       `cbor:"neighbourhood"`
	Member        language.DID `cbor:"member"`
}

type JoinResponse struct{}

type AppendRequest struct {
	Neighbourhood string                 `cbor:"neighbourhood"`
	Envelope      neighbourhood.Envelope `cbor:"envelope"`
}

type AppendResponse struct {
	Seq uint64 `cbor:"seq"`
}

type SinceRequest struct {
	Neighbourhood string `cbor:"neighbourhood"`
	After         uint64 `cbor:"after"`
	Limit         int    `cbor:"limit"`
}

type SinceResponse struct {
	Envelopes []neighbourhood.Envelope `cbor:"envelopes"`
}

type MembersRequest struct {
	Neighbourhood string `cbor:"neighbourhood"`
}

type MembersResponse struct {
	Members []language.DID `cbor:"members"`
}

// RelayServer is the server side of the relay service.
type RelayServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	Since(context.Context, *SinceRequest) (*SinceResponse, error)
	Members(context.Context, *MembersRequest) (*MembersResponse, error)
}

// ServiceDesc describes the relay service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: joinHandler},
		{MethodName: "Append", Handler: appendHandler},
		{MethodName: "Since", Handler: sinceHandler},
		{MethodName: "Members", Handler: membersHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ad4m/neighbourhood/v1/relay",
}

// RegisterRelayServer registers srv on s.
func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func joinHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: joinMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func appendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AppendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: appendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Append(ctx, req.(*AppendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sinceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SinceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Since(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sinceMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Since(ctx, req.(*SinceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func membersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MembersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Members(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: membersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Members(ctx, req.(*MembersRequest))
	}
	return interceptor(ctx, in, info, handler)
}
