// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package expression implements the expression adapter of the language:
// authored, timestamped, proof-carrying content stored under an address.
package expression

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

const maxAddressAttempts = 8

var (
	_ language.ExpressionAdapter = (*Adapter)(nil)
	_ language.PutAdapter        = (*PutAdapter)(nil)
)

// Adapter resolves and stores expressions.
type Adapter struct {
	agent   language.AgentService
	store   Store
	scheme  AddressScheme
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	putter  *PutAdapter
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore sets the backing store. The default is a MemoryStore.
func WithStore(store Store) Option {
	return func(a *Adapter) {
		if store != nil {
			a.store = store
		}
	}
}

// WithAddressScheme selects how new addresses are derived.
func WithAddressScheme(scheme AddressScheme) Option {
	return func(a *Adapter) {
		if scheme != "" {
			a.scheme = scheme
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithClock overrides the time source used for timestamps and addresses.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter creates an expression adapter authoring as agentService. A nil
// agentService authors as agent.DefaultDID with unsigned proofs.
func NewAdapter(agentService language.AgentService, opts ...Option) *Adapter {
	if agentService == nil {
		agentService = agent.NewStatic("")
	}
	a := &Adapter{
		agent:   agentService,
		store:   NewMemoryStore(),
		scheme:  SchemeRandom,
		logger:  slog.Default(),
		metrics: telemetry.DefaultMetrics(),
		tracer:  otel.Tracer("ad4mlang/expression"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.putter = &PutAdapter{adapter: a}
	return a
}

// Scheme returns the address scheme in use.
func (a *Adapter) Scheme() AddressScheme {
	return a.scheme
}

// Get implements language.ExpressionAdapter. An unknown address yields
// nil and no error.
func (a *Adapter) Get(ctx context.Context, address language.Address) (*language.Expression, error) {
	ctx, span := a.tracer.Start(ctx, "Expression.Get", trace.WithAttributes(
		attribute.String(telemetry.AttrExpressionAddress, address),
	))
	defer span.End()

	expr, found, err := a.store.Get(ctx, address)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "expression")
		a.logger.ErrorContext(ctx, "expression.get.error",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	span.SetAttributes(telemetry.ExpressionAttributes("", found)...)
	a.metrics.ExpressionLookup(ctx, found)
	if !found {
		return nil, nil
	}
	return expr, nil
}

// Putter implements language.ExpressionAdapter.
func (a *Adapter) Putter() language.PutAdapter {
	return a.putter
}

// Verify loads the expression at address and recomputes its proof flags.
// An unknown address yields nil and no error.
func (a *Adapter) Verify(ctx context.Context, address language.Address) (*language.Expression, error) {
	expr, err := a.Get(ctx, address)
	if err != nil || expr == nil {
		return nil, err
	}
	return agent.VerifyExpression(expr), nil
}

// PutAdapter publishes expressions for an Adapter.
type PutAdapter struct {
	adapter *Adapter
}

// CreatePublic stores data as a new expression authored by the agent and
// returns its address. data is kept in its JSON-encoded string form.
func (p *PutAdapter) CreatePublic(ctx context.Context, data any) (language.Address, error) {
	a := p.adapter
	ctx, span := a.tracer.Start(ctx, "Expression.CreatePublic", trace.WithAttributes(
		attribute.String(telemetry.AttrExpressionScheme, string(a.scheme)),
		attribute.String(telemetry.AttrAgentDID, a.agent.DID()),
	))
	defer span.End()

	address, err := p.create(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "expression")
		a.logger.ErrorContext(ctx, "expression.put.error", slog.String("error", err.Error()))
		return "", err
	}
	span.SetAttributes(attribute.String(telemetry.AttrExpressionAddress, address))
	a.metrics.ExpressionCreated(ctx, string(a.scheme))
	a.logger.DebugContext(ctx, "expression.put",
		slog.String("address", address),
		slog.String("author", a.agent.DID()),
	)
	return address, nil
}

func (p *PutAdapter) create(ctx context.Context, data any) (language.Address, error) {
	a := p.adapter
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", errors.New(errors.CodeInvalidInput, "data is not JSON encodable", err)
	}
	content := string(encoded)

	now := a.now()
	author := a.agent.DID()
	timestamp := language.Timestamp(now)
	payload, err := agent.SigningPayload(author, timestamp, content)
	if err != nil {
		return "", errors.New(errors.CodeCodec, "encode signing payload", err)
	}
	proof, err := a.agent.Sign(ctx, payload)
	if err != nil {
		return "", errors.New(errors.CodeInternal, "sign expression", err).
			WithContext("author", author)
	}
	expr := &language.Expression{
		Author:    author,
		Timestamp: timestamp,
		Data:      content,
		Proof:     proof,
	}

	return p.store(ctx, expr, now, content)
}

// store puts expr under its address. A content address already taken
// holds the same content and is returned as is; a random address lost to
// another writer is drawn again.
func (p *PutAdapter) store(ctx context.Context, expr *language.Expression, now time.Time, content string) (language.Address, error) {
	a := p.adapter
	if a.scheme == SchemeContent {
		address, err := ContentAddress(content)
		if err != nil {
			return "", err
		}
		if _, err := a.store.Put(ctx, address, expr); err != nil {
			return "", err
		}
		return address, nil
	}
	for range maxAddressAttempts {
		address := RandomAddress(now)
		inserted, err := a.store.Put(ctx, address, expr)
		if err != nil {
			return "", err
		}
		if inserted {
			return address, nil
		}
	}
	return "", errors.New(errors.CodeInternal, "could not allocate a free address", nil).
		WithContext("attempts", maxAddressAttempts)
}
