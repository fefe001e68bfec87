// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/ad4mlang/pkg/config"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood/relay"
	"github.com/jllopis/ad4mlang/pkg/plugin"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

func runRelay(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	if len(args) == 0 || args[0] != "serve" {
		return NewInvalidArgumentError("relay", "expected 'relay serve'")
	}

	fs := pflag.NewFlagSet("relay serve", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	listen := fs.String("listen", cfg.Relay.ListenAddr, "address to listen on")
	driver := fs.String("driver", cfg.Relay.Driver, "neighbourhood storage: memory or sqlite")
	if err := fs.Parse(args[1:]); err != nil {
		return NewInvalidArgumentError("relay serve", err.Error())
	}

	var opener relay.Opener
	switch *driver {
	case "memory":
		opener = relay.MemoryOpener()
	case "sqlite":
		db, err := plugin.OpenSQLite(cfg.RelayPath())
		if err != nil {
			return err
		}
		defer db.Close()
		opener = relay.SQLiteOpener(db)
	default:
		return NewInvalidArgumentError("driver", fmt.Sprintf("unknown relay driver %q", *driver))
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		return WrapConnectionError(err, *listen)
	}

	logger := slog.Default()
	server := relay.NewServer(opener, relay.WithToken(cfg.Relay.Token), relay.WithServerLogger(logger))
	logger.Info("relay.listening",
		slog.String("addr", lis.Addr().String()),
		slog.String("driver", *driver),
		slog.Bool("auth", cfg.Relay.Token != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	if global.Config != "" {
		watcher, _, err := config.WatchConfig(gctx, config.Options{
			Path:    global.Config,
			Profile: global.Profile,
			Set:     global.Set,
		}, config.WithWatchLogger(logger))
		if err != nil {
			_ = lis.Close()
			return NewConfigError(err, global.Config)
		}
		watcher.OnChange(func(old, next *config.Config) {
			if next.Log.Level != old.Log.Level {
				telemetry.SetLogLevel(next.Log.Level)
			}
			if next.Relay != old.Relay {
				logger.Warn("relay.config.restart_required",
					slog.String("listen_addr", next.Relay.ListenAddr),
					slog.String("driver", next.Relay.Driver))
			}
		})
		g.Go(func() error {
			<-gctx.Done()
			watcher.Stop()
			return nil
		})
	}
	g.Go(func() error {
		return server.Serve(gctx, lis)
	})
	return g.Wait()
}
