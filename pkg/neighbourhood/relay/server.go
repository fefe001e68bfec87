// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"net"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

// Opener returns the log backing neighbourhood id. The server calls it
// once per id and caches the result.
type Opener func(ctx context.Context, id string) (neighbourhood.Log, error)

// MemoryOpener keeps every neighbourhood in process memory.
func MemoryOpener() Opener {
	return func(context.Context, string) (neighbourhood.Log, error) {
		return neighbourhood.NewMemoryHub(), nil
	}
}

// SQLiteOpener keeps every neighbourhood in db.
func SQLiteOpener(db *sql.DB) Opener {
	return func(_ context.Context, id string) (neighbourhood.Log, error) {
		return neighbourhood.NewSQLiteLog(db, id)
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithToken requires callers to present token as a bearer token.
func WithToken(token string) ServerOption {
	return func(s *Server) {
		s.token = token
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server multiplexes neighbourhood logs behind the relay service.
type Server struct {
	opener Opener
	token  string
	logger *slog.Logger
	tracer trace.Tracer

	mu   sync.Mutex
	logs map[string]neighbourhood.Log
}

// NewServer creates a relay server over the logs returned by opener.
func NewServer(opener Opener, opts ...ServerOption) *Server {
	s := &Server{
		opener: opener,
		logger: slog.Default(),
		tracer: otel.Tracer("ad4mlang/relay"),
		logs:   make(map[string]neighbourhood.Log),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GRPCServer returns a gRPC server with the relay registered and the auth
// interceptor installed.
func (s *Server) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		UnaryTraceInterceptor(),
		UnaryAuthInterceptor(s.token),
	))
	gs := grpc.NewServer(opts...)
	RegisterRelayServer(gs, s)
	return gs
}

// Serve runs the relay on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := s.GRPCServer()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-done:
		}
	}()
	s.logger.Info("relay.serve", slog.String("addr", lis.Addr().String()))
	err := gs.Serve(lis)
	close(done)
	if stderrors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *Server) open(ctx context.Context, id string) (neighbourhood.Log, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "neighbourhood id is empty", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.logs[id]; ok {
		return log, nil
	}
	log, err := s.opener(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logs[id] = log
	s.logger.InfoContext(ctx, "relay.neighbourhood.opened", slog.String(telemetry.AttrNeighbourhoodID, id))
	return log, nil
}

func (s *Server) start(ctx context.Context, name, id string) (context.Context, trace.Span) {
	ctx = telemetry.WithNeighbourhood(ctx, id)
	return s.tracer.Start(ctx, "relay."+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(telemetry.AttrNeighbourhoodID, id)))
}

func (s *Server) finish(ctx context.Context, span trace.Span, name string, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.WarnContext(ctx, "relay."+name+".failed", slog.String("error", err.Error()))
	return toStatus(err)
}

// Join implements RelayServer.
func (s *Server) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	ctx, span := s.start(ctx, "join", req.Neighbourhood)
	err := func() error {
		if req.Member == "" {
			return errors.New(errors.CodeInvalidInput, "member is empty", nil)
		}
		log, err := s.open(ctx, req.Neighbourhood)
		if err != nil {
			return err
		}
		return log.Join(ctx, req.Member)
	}()
	if err := s.finish(ctx, span, "join", err); err != nil {
		return nil, err
	}
	return &JoinResponse{}, nil
}

// Append implements RelayServer.
func (s *Server) Append(ctx context.Context, req *AppendRequest) (*AppendResponse, error) {
	ctx, span := s.start(ctx, "append", req.Neighbourhood)
	var seq uint64
	err := func() error {
		log, err := s.open(ctx, req.Neighbourhood)
		if err != nil {
			return err
		}
		seq, err = log.Append(ctx, req.Envelope)
		return err
	}()
	if err := s.finish(ctx, span, "append", err); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "relay.append",
		slog.String("envelope_id", req.Envelope.ID),
		slog.Uint64("seq", seq))
	return &AppendResponse{Seq: seq}, nil
}

// Since implements RelayServer.
func (s *Server) Since(ctx context.Context, req *SinceRequest) (*SinceResponse, error) {
	ctx, span := s.start(ctx, "since", req.Neighbourhood)
	var envelopes []neighbourhood.Envelope
	err := func() error {
		log, err := s.open(ctx, req.Neighbourhood)
		if err != nil {
			return err
		}
		envelopes, err = log.Since(ctx, req.After, req.Limit)
		return err
	}()
	if err := s.finish(ctx, span, "since", err); err != nil {
		return nil, err
	}
	return &SinceResponse{Envelopes: envelopes}, nil
}

// Members implements RelayServer.
func (s *Server) Members(ctx context.Context, req *MembersRequest) (*MembersResponse, error) {
	ctx, span := s.start(ctx, "members", req.Neighbourhood)
	var members []language.DID
	err := func() error {
		log, err := s.open(ctx, req.Neighbourhood)
		if err != nil {
			return err
		}
		members, err = log.Members(ctx)
		return err
	}()
	if err := s.finish(ctx, span, "members", err); err != nil {
		return nil, err
	}
	return &MembersResponse{Members: members}, nil
}

var _ RelayServer = (*Server)(nil)

// toStatus maps a LanguageError onto the gRPC status a client maps back.
func toStatus(err error) error {
	le := errors.AsLanguageError(err)
	code := grpccodes.Internal
	switch le.Code {
	case errors.CodeInvalidInput:
		code = grpccodes.InvalidArgument
	case errors.CodeNotFound:
		code = grpccodes.NotFound
	case errors.CodeTimeout:
		code = grpccodes.DeadlineExceeded
	case errors.CodeContextLost:
		code = grpccodes.Canceled
	case errors.CodeUnavailable, errors.CodeNetwork:
		code = grpccodes.Unavailable
	case errors.CodeCodec:
		code = grpccodes.DataLoss
	case errors.CodeStorage:
		if le.Recoverable {
			code = grpccodes.Unavailable
		}
	}
	return status.Error(code, le.Error())
}

// fromStatus maps a gRPC error received by the client to a LanguageError.
func fromStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.New(errors.CodeNetwork, "relay call failed", err).
			WithContext("method", method).
			WithRecoverable(true)
	}
	var le *errors.LanguageError
	switch st.Code() {
	case grpccodes.InvalidArgument:
		le = errors.New(errors.CodeInvalidInput, st.Message(), nil)
	case grpccodes.NotFound:
		le = errors.New(errors.CodeNotFound, st.Message(), nil)
	case grpccodes.Canceled:
		le = errors.New(errors.CodeContextLost, st.Message(), nil)
	case grpccodes.DataLoss:
		le = errors.New(errors.CodeCodec, st.Message(), nil)
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.ResourceExhausted, grpccodes.Aborted:
		le = errors.New(errors.CodeNetwork, st.Message(), nil).WithRecoverable(true)
	case grpccodes.Unauthenticated, grpccodes.PermissionDenied:
		le = errors.New(errors.CodeNetwork, st.Message(), nil)
	default:
		le = errors.New(errors.CodeInternal, st.Message(), nil)
	}
	return le.WithContext("method", method).WithContext("grpc_code", st.Code().String())
}
