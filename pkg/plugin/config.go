// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/config"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/expression"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/links"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood/relay"
	"github.com/jllopis/ad4mlang/pkg/resilience"

	_ "modernc.org/sqlite"
)

// Files created under storage.path.
const (
	LanguageDBFile  = "language.db"
	ExpressionsFile = "expressions.jsonl"
)

// OpenSQLite opens the database at path, creating its directory. Every
// connection waits for locks and uses WAL so several processes can share
// the file.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(errors.CodeStorage, "create database directory", err).WithContext("path", path)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open database", err).WithContext("path", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.CodeStorage, "open database", err).WithContext("path", path)
	}
	return db, nil
}

// AgentFromConfig returns a KeyAgent when agent.key_file is set and a
// Static agent for agent.did otherwise.
func AgentFromConfig(cfg config.AgentConfig) (language.AgentService, error) {
	if cfg.KeyFile != "" {
		return agent.LoadOrCreateKeyAgent(cfg.KeyFile)
	}
	return agent.NewStatic(cfg.DID), nil
}

// ReliableConfig maps the neighbourhood retry and breaker settings.
func ReliableConfig(cfg config.NeighbourhoodConfig, logger *slog.Logger) neighbourhood.ReliableConfig {
	rc := neighbourhood.DefaultReliableConfig()
	if cfg.Retry.MaxAttempts > 0 {
		rc.Retry = rc.Retry.WithMaxAttempts(cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay > 0 {
		rc.Retry = rc.Retry.WithInitialDelay(cfg.Retry.InitialDelay)
	}
	if cfg.Retry.MaxDelay > 0 {
		rc.Retry = rc.Retry.WithMaxDelay(cfg.Retry.MaxDelay)
	}
	rc.Breaker = resilience.CircuitBreakerConfig{
		Name:             "neighbourhood." + cfg.ID,
		FailureThreshold: cfg.Breaker.Failures,
		Timeout:          cfg.Breaker.Timeout,
		Logger:           logger,
	}
	rc.Logger = logger
	return rc
}

// FromConfig opens the drivers selected by cfg and creates the language.
// Close on the result releases them.
func FromConfig(ctx context.Context, cfg *config.Config) (*language.Language, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default()

	agentService, err := AgentFromConfig(cfg.Agent)
	if err != nil {
		return nil, err
	}
	scheme, err := expression.ParseAddressScheme(cfg.Language.AddressScheme)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	opts := []Option{
		WithName(cfg.Language.Name),
		WithAddressScheme(scheme),
		WithSyncInterval(cfg.Neighbourhood.SyncInterval),
	}

	switch cfg.Storage.Driver {
	case "file", "sqlite":
		db, err := OpenSQLite(filepath.Join(cfg.Storage.Path, LanguageDBFile))
		if err != nil {
			return nil, err
		}
		closers = append(closers, db.Close)
		linkStore, err := links.NewSQLiteStore(db)
		if err != nil {
			closeAll()
			return nil, err
		}
		opts = append(opts, WithLinkStore(linkStore))
		if cfg.Storage.Driver == "file" {
			exprStore := expression.NewFileStore(filepath.Join(cfg.Storage.Path, ExpressionsFile)).WithFileLogger(logger)
			opts = append(opts, WithExpressionStore(exprStore))
			break
		}
		exprStore, err := expression.NewSQLiteStore(db)
		if err != nil {
			closeAll()
			return nil, err
		}
		opts = append(opts, WithExpressionStore(exprStore))
	}

	log, closeLog, err := openNeighbourhood(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	if closeLog != nil {
		closers = append(closers, closeLog)
	}
	if log != nil {
		opts = append(opts, WithNeighbourhood(cfg.Neighbourhood.ID,
			neighbourhood.NewReliable(log, ReliableConfig(cfg.Neighbourhood, logger))))
	}

	for _, fn := range closers {
		opts = append(opts, WithCloser(fn))
	}
	lang, err := Create(ctx, language.Context{
		Agent:            agentService,
		StorageDirectory: cfg.Storage.Path,
		Logger:           logger,
	}, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return lang, nil
}

func openNeighbourhood(cfg *config.Config) (neighbourhood.Log, func() error, error) {
	nc := cfg.Neighbourhood
	switch nc.Driver {
	case "memory":
		return neighbourhood.SharedHub(nc.ID), nil, nil
	case "sqlite":
		db, err := OpenSQLite(cfg.NeighbourhoodPath())
		if err != nil {
			return nil, nil, err
		}
		log, err := neighbourhood.NewSQLiteLog(db, nc.ID)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return log, db.Close, nil
	case "relay":
		client, err := relay.Dial(nc.RelayAddr, nc.ID, relay.WithBearerToken(nc.RelayToken))
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return nil, nil, nil
	}
}
