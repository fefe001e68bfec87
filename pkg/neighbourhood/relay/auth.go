// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryAuthInterceptor rejects calls whose bearer token does not match
// token. An empty token disables the check.
func UnaryAuthInterceptor(token string) grpc.UnaryServerInterceptor {
	want := []byte(token)
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(want) == 0 {
			return handler(ctx, req)
		}
		got, ok := bearerToken(ctx)
		switch {
		case !ok:
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return handler(ctx, req)
	}
}

// bearerToken returns the token of the first "authorization: Bearer ..."
// entry in the incoming metadata.
func bearerToken(ctx context.Context) (string, bool) {
	md, _ := metadata.FromIncomingContext(ctx)
	for _, value := range md.Get("authorization") {
		scheme, token, found := strings.Cut(value, " ")
		if found && strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(token)
			return token, token != ""
		}
	}
	return "", false
}

// bearerCredentials sends a static token on every call, over plaintext
// connections too.
type bearerCredentials struct {
	token string
}

func (b bearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (bearerCredentials) RequireTransportSecurity() bool {
	return false
}

var _ credentials.PerRPCCredentials = bearerCredentials{}
