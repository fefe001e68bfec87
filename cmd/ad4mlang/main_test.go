// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/ad4mlang/pkg/config"
	"github.com/jllopis/ad4mlang/pkg/language"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantRest []string
		want     globalFlags
		wantErr  bool
	}{
		{
			name:     "defaults",
			args:     []string{"render"},
			wantRest: []string{"render"},
			want:     globalFlags{Output: "text", Timeout: 30 * time.Second},
		},
		{
			name:     "flags before command",
			args:     []string{"--config", "c.yaml", "--env", "dev", "--set", "a=1", "--set", "b=2", "-o", "json", "get", "addr"},
			wantRest: []string{"get", "addr"},
			want:     globalFlags{Config: "c.yaml", Profile: "dev", Set: []string{"a=1", "b=2"}, Output: "json", Timeout: 30 * time.Second},
		},
		{
			name:     "command flags are left alone",
			args:     []string{"--timeout=2s", "commit", "--add", "a,b"},
			wantRest: []string{"commit", "--add", "a,b"},
			want:     globalFlags{Output: "text", Timeout: 2 * time.Second},
		},
		{
			name:     "help",
			args:     []string{"-h"},
			wantRest: []string{},
			want:     globalFlags{Output: "text", Timeout: 30 * time.Second, Help: true},
		},
		{name: "bad output", args: []string{"-o", "xml", "render"}, wantErr: true},
		{name: "unknown flag", args: []string{"--nope", "render"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest, err := parseGlobalFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGlobalFlags: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRest, rest); diff != "" {
				t.Errorf("rest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLink(t *testing.T) {
	tests := []struct {
		in      string
		want    language.Link
		wantErr bool
	}{
		{in: "a,b", want: language.Link{Source: "a", Target: "b"}},
		{in: " a , b , likes ", want: language.Link{Source: "a", Target: "b", Predicate: "likes"}},
		{in: "a", wantErr: true},
		{in: "a,b,c,d", wantErr: true},
		{in: ",b", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLink(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLink(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseLink(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseLink(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

// cli runs the command line against a sqlite store in dir.
func cli(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []string{
		"--set", "storage.driver=sqlite",
		"--set", "storage.path=" + dir,
		"--set", "log.level=error",
	}
	code := run(context.Background(), append(base, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestPutGetVerify(t *testing.T) {
	dir := t.TempDir()

	code, out, errOut := cli(t, dir, "put", `{"hello":"world"}`)
	if code != 0 {
		t.Fatalf("put exit %d: %s", code, errOut)
	}
	address := strings.TrimSpace(out)
	if address == "" {
		t.Fatalf("expected an address")
	}

	code, out, errOut = cli(t, dir, "-o", "json", "get", address)
	if code != 0 {
		t.Fatalf("get exit %d: %s", code, errOut)
	}
	var expr language.Expression
	if err := json.Unmarshal([]byte(out), &expr); err != nil {
		t.Fatalf("decode get output %q: %v", out, err)
	}
	if expr.Author != "did:key:test" {
		t.Errorf("author = %q", expr.Author)
	}
	if expr.Data != `{"hello":"world"}` {
		t.Errorf("data = %#v", expr.Data)
	}

	code, out, errOut = cli(t, dir, "verify", address)
	if code != 0 {
		t.Fatalf("verify exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "VALID") || !strings.Contains(out, "true") {
		t.Errorf("verify output missing validity:\n%s", out)
	}
}

func TestGetMissing(t *testing.T) {
	code, _, errOut := cli(t, t.TempDir(), "-o", "json", "get", "nope")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
			Hint string `json:"hint"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(errOut), &payload); err != nil {
		t.Fatalf("decode error output %q: %v", errOut, err)
	}
	if payload.Error.Code != "NOT_FOUND" || payload.Error.Hint == "" {
		t.Errorf("unexpected error payload %+v", payload.Error)
	}
}

func TestCommitRenderRevision(t *testing.T) {
	dir := t.TempDir()

	code, out, errOut := cli(t, dir, "commit", "--add", "a,b,likes", "--add", "b,c")
	if code != 0 {
		t.Fatalf("commit exit %d: %s", code, errOut)
	}
	if got := strings.TrimSpace(out); got != "1" {
		t.Fatalf("revision after commit = %q, want 1", got)
	}

	code, _, errOut = cli(t, dir, "commit", "--remove", "b,c")
	if code != 0 {
		t.Fatalf("remove exit %d: %s", code, errOut)
	}

	code, out, errOut = cli(t, dir, "-o", "yaml", "render")
	if code != 0 {
		t.Fatalf("render exit %d: %s", code, errOut)
	}
	var perspective struct {
		Links []struct {
			Data struct {
				Source    string `yaml:"source"`
				Target    string `yaml:"target"`
				Predicate string `yaml:"predicate"`
			} `yaml:"data"`
		} `yaml:"links"`
	}
	if err := yaml.Unmarshal([]byte(out), &perspective); err != nil {
		t.Fatalf("decode yaml %q: %v", out, err)
	}
	if len(perspective.Links) != 1 || perspective.Links[0].Data.Predicate != "likes" {
		t.Fatalf("unexpected perspective %+v", perspective)
	}

	code, out, _ = cli(t, dir, "revision")
	if code != 0 || strings.TrimSpace(out) != "2" {
		t.Fatalf("revision = %q (exit %d), want 2", out, code)
	}
}

func TestCommitInvalidLink(t *testing.T) {
	code, _, errOut := cli(t, t.TempDir(), "commit", "--add", "only-source")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut, "Invalid Input") {
		t.Errorf("expected invalid input error, got %q", errOut)
	}
}

func TestSyncWithoutNeighbourhood(t *testing.T) {
	code, out, errOut := cli(t, t.TempDir(), "-o", "json", "sync")
	if code != 0 {
		t.Fatalf("sync exit %d: %s", code, errOut)
	}
	if diff := cmp.Diff(`{"additions":[],"removals":[]}`, compactJSON(t, out)); diff != "" {
		t.Errorf("sync output mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedNeighbourhoodThroughCLI(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "hood.db")
	hood := []string{
		"--set", "neighbourhood.driver=sqlite",
		"--set", "neighbourhood.id=cli-test",
		"--set", "neighbourhood.path=" + shared,
	}
	alice, bob := t.TempDir(), t.TempDir()

	args := append(append([]string{"--set", "agent.did=did:key:alice"}, hood...), "commit", "--add", "x,y")
	if code, _, errOut := cli(t, alice, args...); code != 0 {
		t.Fatalf("alice commit exit %d: %s", code, errOut)
	}

	args = append(append([]string{"--set", "agent.did=did:key:bob", "-o", "json"}, hood...), "sync")
	code, out, errOut := cli(t, bob, args...)
	if code != 0 {
		t.Fatalf("bob sync exit %d: %s", code, errOut)
	}
	var diff language.PerspectiveDiff
	if err := json.Unmarshal([]byte(out), &diff); err != nil {
		t.Fatalf("decode diff %q: %v", out, err)
	}
	if len(diff.Additions) != 1 || diff.Additions[0].Author != "did:key:alice" {
		t.Fatalf("expected bob to learn alice's link, got %+v", diff)
	}

	args = append(append([]string{"--set", "agent.did=did:key:bob"}, hood...), "others")
	code, out, _ = cli(t, bob, args...)
	if code != 0 || strings.TrimSpace(out) != "did:key:alice" {
		t.Fatalf("others = %q (exit %d)", out, code)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := cli(t, t.TempDir(), "frobnicate")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Errorf("expected unknown command message, got %q", errOut)
	}
}

func TestInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--set", "storage.driver=tape", "render"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "configuration error") {
		t.Errorf("expected configuration error, got %q", stderr.String())
	}
}

func TestHelpAndVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("help exit %d", code)
	}
	if !strings.Contains(stdout.String(), "Commands:") {
		t.Errorf("usage missing commands:\n%s", stdout.String())
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("version exit %d", code)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Errorf("version = %q", stdout.String())
	}
}

func TestInitGeneratesLoadableConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lang")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"init", dir, "--name", "notes", "--neighbourhood", "relay"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("init exit %d: %s", code, stderr.String())
	}

	for _, profile := range []string{"", "dev", "prod"} {
		cfg, err := config.LoadWithProfile(filepath.Join(dir, "config.yaml"), profile)
		if err != nil {
			t.Fatalf("load profile %q: %v", profile, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("validate profile %q: %v", profile, err)
		}
		if cfg.Language.Name != "notes" || cfg.Neighbourhood.Driver != "relay" || cfg.Neighbourhood.ID != "notes" {
			t.Errorf("profile %q: unexpected config %+v", profile, cfg.Language)
		}
	}

	code = run(context.Background(), []string{"init", dir}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected init over an existing config to fail, got exit %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.prod.yaml")); err != nil {
		t.Fatalf("expected prod overlay: %v", err)
	}
}

func TestRelayServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"--set", "log.level=error", "relay", "serve", "--listen", "127.0.0.1:0"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("relay serve exit %d: %s", code, stderr.String())
	}

	code = run(context.Background(), []string{"relay", "serve", "--driver", "tape"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected unknown relay driver to fail, got exit %d", code)
	}
}

func compactJSON(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		t.Fatalf("compact %q: %v", s, err)
	}
	return buf.String()
}
