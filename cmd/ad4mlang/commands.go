// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/config"
	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/expression"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/plugin"
)

// languageCommand runs against a language opened from the loaded config.
type languageCommand func(ctx context.Context, env *commandEnv, args []string) error

type commandEnv struct {
	cfg  *config.Config
	lang *language.Language
	out  *printer
	now  func() time.Time
}

var languageCommands = map[string]languageCommand{
	"put":      runPut,
	"get":      runGet,
	"verify":   runVerify,
	"commit":   runCommit,
	"render":   runRender,
	"sync":     runSync,
	"revision": runRevision,
	"others":   runOthers,
}

func runLanguageCommand(ctx context.Context, global globalFlags, cfg *config.Config, out *printer, args []string) error {
	cmd, ok := languageCommands[args[0]]
	if !ok {
		return NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", args[0]))
	}

	if global.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, global.Timeout)
		defer cancel()
	}

	lang, err := plugin.FromConfig(ctx, cfg)
	if err != nil {
		return commandError(ctx, err, cfg, args[0])
	}
	defer lang.Close()

	env := &commandEnv{cfg: cfg, lang: lang, out: out, now: time.Now}
	if err := cmd(ctx, env, args[1:]); err != nil {
		return commandError(ctx, err, cfg, args[0])
	}
	return nil
}

func commandError(ctx context.Context, err error, cfg *config.Config, name string) error {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return err
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return WrapTimeoutError(err, name)
	}
	if cfg.Neighbourhood.Driver == "relay" && errors.IsCode(err, errors.CodeNetwork) {
		return WrapConnectionError(err, cfg.Neighbourhood.RelayAddr)
	}
	return err
}

func runPut(ctx context.Context, env *commandEnv, args []string) error {
	if len(args) != 1 {
		return NewInvalidArgumentError("put", "expected exactly one value")
	}
	address, err := env.lang.ExpressionAdapter.Putter().CreatePublic(ctx, parseValue(args[0]))
	if err != nil {
		return err
	}
	return env.out.print(map[string]string{"address": address}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, address)
		return err
	})
}

// parseValue decodes raw as JSON, falling back to the plain string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func runGet(ctx context.Context, env *commandEnv, args []string) error {
	if len(args) != 1 {
		return NewInvalidArgumentError("get", "expected an address")
	}
	expr, err := env.lang.ExpressionAdapter.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if expr == nil {
		return NewNotFoundError("expression", args[0])
	}
	return printExpression(env.out, expr)
}

func runVerify(ctx context.Context, env *commandEnv, args []string) error {
	if len(args) != 1 {
		return NewInvalidArgumentError("verify", "expected an address")
	}
	adapter, ok := env.lang.ExpressionAdapter.(*expression.Adapter)
	if !ok {
		return errors.New(errors.CodeInternal, "expression adapter cannot verify", nil)
	}
	expr, err := adapter.Verify(ctx, args[0])
	if err != nil {
		return err
	}
	if expr == nil {
		return NewNotFoundError("expression", args[0])
	}
	return printExpression(env.out, expr)
}

func printExpression(out *printer, expr *language.Expression) error {
	return out.print(expr, func(w io.Writer) error {
		t := newTable(w)
		t.row("AUTHOR", expr.Author)
		t.row("TIMESTAMP", expr.Timestamp)
		t.row("DATA", fmt.Sprint(expr.Data))
		t.row("VALID", fmt.Sprint(expr.Proof.Valid))
		t.row("KEY", expr.Proof.Key)
		return t.flush()
	})
}

func runCommit(ctx context.Context, env *commandEnv, args []string) error {
	fs := pflag.NewFlagSet("commit", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	adds := fs.StringArray("add", nil, "link to add as source,target[,predicate]")
	removes := fs.StringArray("remove", nil, "link to remove as source,target[,predicate]")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("commit", err.Error())
	}
	if fs.NArg() > 0 {
		return NewInvalidArgumentError("commit", fmt.Sprintf("unexpected argument %q", fs.Arg(0)))
	}

	svc, err := plugin.AgentFromConfig(env.cfg.Agent)
	if err != nil {
		return err
	}
	diff := language.EmptyDiff()
	for _, spec := range *adds {
		expr, err := authorLink(ctx, svc, spec, env.now())
		if err != nil {
			return err
		}
		diff.Additions = append(diff.Additions, expr)
	}
	for _, spec := range *removes {
		expr, err := authorLink(ctx, svc, spec, env.now())
		if err != nil {
			return err
		}
		diff.Removals = append(diff.Removals, expr)
	}

	revision, err := env.lang.LinksAdapter.Commit(ctx, diff)
	if err != nil {
		return err
	}
	return env.out.print(map[string]string{"revision": revision}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, revision)
		return err
	})
}

func authorLink(ctx context.Context, svc language.AgentService, spec string, now time.Time) (language.LinkExpression, error) {
	link, err := parseLink(spec)
	if err != nil {
		return language.LinkExpression{}, err
	}
	return agent.NewLink(ctx, svc, link, now)
}

// parseLink reads source,target[,predicate].
func parseLink(spec string) (language.Link, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return language.Link{}, NewInvalidArgumentError("link", fmt.Sprintf("%q is not source,target[,predicate]", spec))
	}
	link := language.Link{
		Source: strings.TrimSpace(parts[0]),
		Target: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		link.Predicate = strings.TrimSpace(parts[2])
	}
	if link.Source == "" || link.Target == "" {
		return language.Link{}, NewInvalidArgumentError("link", fmt.Sprintf("%q has an empty source or target", spec))
	}
	return link, nil
}

func runRender(ctx context.Context, env *commandEnv, args []string) error {
	perspective, err := env.lang.LinksAdapter.Render(ctx)
	if err != nil {
		return err
	}
	return env.out.print(perspective, func(w io.Writer) error {
		return printLinks(w, perspective.Links)
	})
}

func printLinks(w io.Writer, links []language.LinkExpression) error {
	t := newTable(w, "SOURCE", "PREDICATE", "TARGET", "AUTHOR", "TIMESTAMP")
	for _, l := range links {
		t.linkRow(l)
	}
	return t.flush()
}

func runSync(ctx context.Context, env *commandEnv, args []string) error {
	diff, err := env.lang.LinksAdapter.Sync(ctx)
	if err != nil {
		return err
	}
	return env.out.print(diff, func(w io.Writer) error {
		fmt.Fprintf(w, "learned %d additions, %d removals\n", len(diff.Additions), len(diff.Removals))
		if diff.Empty() {
			return nil
		}
		t := newTable(w, "OP", "SOURCE", "PREDICATE", "TARGET", "AUTHOR", "TIMESTAMP")
		for _, l := range diff.Additions {
			t.linkRow(l, "+")
		}
		for _, l := range diff.Removals {
			t.linkRow(l, "-")
		}
		return t.flush()
	})
}

func runRevision(ctx context.Context, env *commandEnv, args []string) error {
	revision, err := env.lang.LinksAdapter.CurrentRevision(ctx)
	if err != nil {
		return err
	}
	return env.out.print(map[string]string{"revision": revision}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, revision)
		return err
	})
}

func runOthers(ctx context.Context, env *commandEnv, args []string) error {
	others, err := env.lang.LinksAdapter.Others(ctx)
	if err != nil {
		return err
	}
	return env.out.print(map[string][]string{"others": others}, func(w io.Writer) error {
		for _, did := range others {
			if _, err := fmt.Fprintln(w, did); err != nil {
				return err
			}
		}
		return nil
	})
}
