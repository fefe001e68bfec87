// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the ad4mlang CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/ad4mlang/pkg/config"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

var version = "dev"

type globalFlags struct {
	Config  string
	Profile string
	Set     []string
	Output  string
	Timeout time.Duration
	Help    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global, rest, err := parseGlobalFlags(args)
	if err != nil {
		reportError(stderr, NewInvalidArgumentError("flags", err.Error()), false)
		return 2
	}
	asJSON := global.Output == "json"
	if global.Help || len(rest) == 0 {
		printUsage(stdout)
		return 0
	}
	switch rest[0] {
	case "help":
		printUsage(stdout)
		return 0
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "init":
		if err := runInit(stdout, rest[1:]); err != nil {
			reportError(stderr, err, asJSON)
			return 1
		}
		return 0
	}

	if global.Profile == "" {
		global.Profile = os.Getenv(config.ProfileEnv)
	}
	cfg, err := config.LoadOptions(config.Options{Path: global.Config, Profile: global.Profile, Set: global.Set})
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		reportError(stderr, NewConfigError(err, global.Config), asJSON)
		return 1
	}

	telemetry.ConfigureSlog(stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := initTelemetry(cfg, stderr)
	if err != nil {
		reportError(stderr, NewConfigError(err, global.Config), asJSON)
		return 1
	}
	defer func() {
		_ = shutdown(context.Background())
	}()

	out := &printer{w: stdout, format: global.Output}
	if rest[0] == "relay" {
		err = runRelay(ctx, global, cfg, rest[1:])
	} else {
		err = runLanguageCommand(ctx, global, cfg, out, rest)
	}
	if err != nil {
		reportError(stderr, err, asJSON)
		return 1
	}
	return 0
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	fs := pflag.NewFlagSet("ad4mlang", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringVar(&flags.Config, "config", "", "path to config.yaml")
	fs.StringVar(&flags.Profile, "profile", "", "profile overlay (config.<profile>.yaml)")
	fs.StringVar(&flags.Profile, "env", "", "alias of --profile")
	fs.StringArrayVar(&flags.Set, "set", nil, "override config key=value (repeatable)")
	fs.StringVarP(&flags.Output, "output", "o", "text", "output format: text, json, yaml")
	fs.DurationVar(&flags.Timeout, "timeout", 30*time.Second, "timeout for one command")
	fs.BoolVarP(&flags.Help, "help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			flags.Help = true
			return flags, nil, nil
		}
		return flags, nil, err
	}
	switch flags.Output {
	case "text", "json", "yaml":
	default:
		return flags, nil, fmt.Errorf("invalid --output %q, want text, json or yaml", flags.Output)
	}
	return flags, fs.Args(), nil
}

func initTelemetry(cfg *config.Config, w io.Writer) (telemetry.ShutdownFunc, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.InitWithConfig("ad4mlang", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		OTLPTimeout:  cfg.Telemetry.OTLPTimeout,
		Writer:       w,
		Attributes: []attribute.KeyValue{
			attribute.String(telemetry.AttrLanguageName, cfg.Language.Name),
		},
	})
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `ad4mlang: expression and link language for AD4M

Usage:
  ad4mlang [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Profile overlay (alias --env, or AD4M_PROFILE)
  --set key=value      Override config (repeatable)
  -o, --output <fmt>   text, json or yaml (default text)
  --timeout <dur>      Command timeout (default 30s)

Commands:
  init <dir> [--overwrite]
  put <json>
  get <address>
  verify <address>
  commit [--add src,dst[,pred]]... [--remove src,dst[,pred]]...
  render
  sync
  revision
  others
  relay serve [--listen <addr>] [--driver memory|sqlite]
  version
`)
}
