// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin builds the language descriptor handed to an AD4M host.
package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/expression"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/links"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

// Host setting keys read from language.Context.Settings.
const (
	SettingName          = "name"
	SettingAddressScheme = "address_scheme"
)

type options struct {
	name            string
	scheme          expression.AddressScheme
	expressionStore expression.Store
	linkStore       links.Store
	neighbourhoodID string
	log             neighbourhood.Log
	syncInterval    time.Duration
	metrics         *telemetry.Metrics
	metricsSet      bool
	closers         []func() error
}

// Option configures Create.
type Option func(*options)

// WithName overrides the language name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithAddressScheme selects how expression addresses are derived.
func WithAddressScheme(scheme expression.AddressScheme) Option {
	return func(o *options) {
		if scheme != "" {
			o.scheme = scheme
		}
	}
}

// WithExpressionStore sets the expression store. The default keeps
// expressions in memory.
func WithExpressionStore(store expression.Store) Option {
	return func(o *options) {
		o.expressionStore = store
	}
}

// WithLinkStore sets the link store. The default keeps links in memory.
func WithLinkStore(store links.Store) Option {
	return func(o *options) {
		o.linkStore = store
	}
}

// WithNeighbourhood attaches the link adapter to the log of neighbourhood id.
func WithNeighbourhood(id string, log neighbourhood.Log) Option {
	return func(o *options) {
		o.neighbourhoodID = id
		o.log = log
	}
}

// WithSyncInterval starts a background sync loop with the given period.
func WithSyncInterval(d time.Duration) Option {
	return func(o *options) {
		o.syncInterval = d
	}
}

// WithMetrics sets the metrics sink for both adapters. A nil sink disables
// metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
		o.metricsSet = true
	}
}

// WithCloser registers fn to run on Language.Close after the sync loop
// has stopped.
func WithCloser(fn func() error) Option {
	return func(o *options) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// Create builds a language for the host context lc. Host settings name and
// address_scheme apply first; options override them.
func Create(ctx context.Context, lc language.Context, opts ...Option) (*language.Language, error) {
	o := options{name: language.DefaultName, scheme: expression.SchemeRandom}
	if err := applySettings(&o, lc.Settings); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.metricsSet {
		o.metrics = telemetry.DefaultMetrics()
	}

	logger := lc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String(telemetry.AttrLanguageName, o.name))

	agentService := lc.Agent
	if agentService == nil {
		agentService = agent.NewStatic("")
	}

	exprOpts := []expression.Option{
		expression.WithAddressScheme(o.scheme),
		expression.WithLogger(logger),
		expression.WithMetrics(o.metrics),
	}
	if o.expressionStore != nil {
		exprOpts = append(exprOpts, expression.WithStore(o.expressionStore))
	}
	linkOpts := []links.Option{
		links.WithLogger(logger),
		links.WithMetrics(o.metrics),
		links.WithSyncInterval(o.syncInterval),
	}
	if o.linkStore != nil {
		linkOpts = append(linkOpts, links.WithStore(o.linkStore))
	}
	if o.log != nil {
		linkOpts = append(linkOpts, links.WithNeighbourhood(o.neighbourhoodID, o.log))
	}

	linksAdapter := links.NewAdapter(agentService, linkOpts...)
	lang := &language.Language{
		Name:              o.name,
		ExpressionAdapter: expression.NewAdapter(agentService, exprOpts...),
		LinksAdapter:      linksAdapter,
		Interactions:      language.NoInteractions,
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeContextLost, "create language", err)
	}
	for _, fn := range o.closers {
		lang.OnClose(fn)
	}
	// The loop outlives ctx; Close stops it.
	linksAdapter.Start(context.WithoutCancel(ctx))
	lang.OnClose(func() error {
		linksAdapter.Stop()
		return nil
	})

	logger.InfoContext(ctx, "language.created",
		slog.String(telemetry.AttrAgentDID, agentService.DID()),
		slog.String(telemetry.AttrExpressionScheme, string(o.scheme)),
		slog.String(telemetry.AttrNeighbourhoodID, o.neighbourhoodID),
	)
	return lang, nil
}

func applySettings(o *options, settings map[string]any) error {
	if v, ok := settings[SettingName]; ok {
		name, isString := v.(string)
		if !isString {
			return errors.New(errors.CodeInvalidInput, "setting name must be a string", nil)
		}
		if name != "" {
			o.name = name
		}
	}
	if v, ok := settings[SettingAddressScheme]; ok {
		raw, isString := v.(string)
		if !isString {
			return errors.New(errors.CodeInvalidInput, "setting address_scheme must be a string", nil)
		}
		scheme, err := expression.ParseAddressScheme(raw)
		if err != nil {
			return err
		}
		o.scheme = scheme
	}
	return nil
}
