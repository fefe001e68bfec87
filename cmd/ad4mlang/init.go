// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/pflag"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// scaffoldOptions configures the generated config files.
type scaffoldOptions struct {
	Name          string
	AddressScheme string // random, content
	Storage       string // memory, file, sqlite
	Neighbourhood string // none, memory, sqlite, relay
	RelayAddr     string
}

type scaffoldFile struct {
	Path     string
	Template string
}

var scaffoldFiles = []scaffoldFile{
	{"config.yaml", configYAMLTemplate},
	{"config.dev.yaml", configDevYAMLTemplate},
	{"config.prod.yaml", configProdYAMLTemplate},
}

func runInit(stdout io.Writer, args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := scaffoldOptions{}
	fs.StringVar(&opts.Name, "name", language.DefaultName, "language name")
	fs.StringVar(&opts.AddressScheme, "address-scheme", "random", "address scheme: random, content")
	fs.StringVar(&opts.Storage, "storage", "sqlite", "storage driver: memory, file, sqlite")
	fs.StringVar(&opts.Neighbourhood, "neighbourhood", "none", "neighbourhood driver: none, memory, sqlite, relay")
	fs.StringVar(&opts.RelayAddr, "relay-addr", "127.0.0.1:7443", "relay address for the relay driver")
	overwrite := fs.Bool("overwrite", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("init", err.Error())
	}
	if fs.NArg() != 1 {
		return NewInvalidArgumentError("init", "directory argument required")
	}

	valid := map[string][]string{
		"address-scheme": {"random", "content"},
		"storage":        {"memory", "file", "sqlite"},
		"neighbourhood":  {"none", "memory", "sqlite", "relay"},
	}
	values := map[string]string{
		"address-scheme": opts.AddressScheme,
		"storage":        opts.Storage,
		"neighbourhood":  opts.Neighbourhood,
	}
	for flag, allowed := range valid {
		if !contains(allowed, values[flag]) {
			return NewInvalidArgumentError(flag, fmt.Sprintf("invalid --%s %q, want one of %v", flag, values[flag], allowed))
		}
	}

	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return NewInvalidArgumentError("directory", err.Error())
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil && !*overwrite {
		return NewInvalidArgumentError("directory", fmt.Sprintf("%s already holds a config.yaml, use --overwrite to replace it", dir))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, f := range scaffoldFiles {
		if err := generateFile(dir, f, opts); err != nil {
			return fmt.Errorf("generating %s: %w", f.Path, err)
		}
		fmt.Fprintf(stdout, "  Created: %s\n", filepath.Join(dir, f.Path))
	}
	fmt.Fprintf(stdout, "\nNext steps:\n  ad4mlang --config %s put '{\"hello\":\"world\"}'\n", filepath.Join(dir, "config.yaml"))
	return nil
}

func generateFile(dir string, spec scaffoldFile, opts scaffoldOptions) error {
	tmpl, err := template.New(spec.Path).Parse(spec.Template)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, spec.Path))
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := tmpl.Execute(f, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("executing template: %w", err)
	}
	return f.Close()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

const configYAMLTemplate = `# {{.Name}} language configuration

language:
  name: "{{.Name}}"
  address_scheme: "{{.AddressScheme}}"

agent:
  did: "did:key:test"
  # key_file: "./data/agent.key"

storage:
  driver: "{{.Storage}}"
  path: "./data"

neighbourhood:
  driver: "{{.Neighbourhood}}"
{{- if ne .Neighbourhood "none"}}
  id: "{{.Name}}"
{{- end}}
{{- if eq .Neighbourhood "relay"}}
  relay_addr: "{{.RelayAddr}}"
  relay_token: ""
{{- end}}
  sync_interval: "0s"
  retry:
    max_attempts: 3
    initial_delay: "100ms"
    max_delay: "5s"
  breaker:
    failures: 5
    timeout: "30s"

log:
  level: "info"
  format: "text"

telemetry:
  enabled: false
  exporter: "none"

relay:
  listen_addr: "{{.RelayAddr}}"
  driver: "sqlite"
  token: ""
`

const configDevYAMLTemplate = `# Development overrides

log:
  level: "debug"

telemetry:
  enabled: true
  exporter: "stdout"
`

const configProdYAMLTemplate = `# Production overrides

log:
  level: "info"
  format: "json"

neighbourhood:
  sync_interval: "5s"

telemetry:
  enabled: true
  exporter: "otlp"
  otlp_endpoint: "localhost:4317"
  otlp_insecure: true
`
