// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// CLIError is a LanguageError plus a hint for the person at the terminal.
type CLIError struct {
	*errors.LanguageError
	Hint string
}

// NewCLIError pairs le with hint.
func NewCLIError(le *errors.LanguageError, hint string) *CLIError {
	return &CLIError{LanguageError: le, Hint: hint}
}

func (e *CLIError) Error() string {
	if e.LanguageError == nil {
		return "unknown error"
	}
	if e.Hint == "" {
		return e.LanguageError.Error()
	}
	return e.LanguageError.Error() + "\n  Hint: " + e.Hint
}

func (e *CLIError) Unwrap() error {
	if e.LanguageError == nil {
		return nil
	}
	return e.LanguageError
}

// cliErrorJSON is what -o json prints on stderr.
type cliErrorJSON struct {
	Error struct {
		Code        errors.ErrorCode `json:"code"`
		Message     string           `json:"message"`
		Detail      string           `json:"detail,omitempty"`
		Hint        string           `json:"hint,omitempty"`
		Recoverable bool             `json:"recoverable"`
	} `json:"error"`
}

// PrintError writes e to w, as one JSON object when asJSON is set.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	var detail string
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if asJSON {
		var out cliErrorJSON
		out.Error.Code = e.Code
		out.Error.Message = e.Message
		out.Error.Detail = detail
		out.Error.Hint = e.Hint
		out.Error.Recoverable = e.Recoverable
		_ = json.NewEncoder(w).Encode(out)
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Code), e.Message)
	for _, line := range [][2]string{{"Cause", detail}, {"Hint", e.Hint}} {
		if line[1] != "" {
			fmt.Fprintf(w, "  %s: %s\n", line[0], line[1])
		}
	}
}

// WrapConnectionError reports that the relay at addr could not be reached.
func WrapConnectionError(err error, addr string) *CLIError {
	le := errors.New(errors.CodeNetwork, "connection failed", err).
		WithContext("address", addr).
		WithRecoverable(true)
	return NewCLIError(le, fmt.Sprintf("check that a relay is serving %s", addr))
}

// WrapTimeoutError reports that command ran past --timeout.
func WrapTimeoutError(err error, command string) *CLIError {
	le := errors.New(errors.CodeTimeout, command+" timed out", err).
		WithContext("command", command).
		WithRecoverable(true)
	return NewCLIError(le, hintFor(le))
}

// NewNotFoundError reports a missing expression or other named resource.
func NewNotFoundError(resource, name string) *CLIError {
	le := errors.New(errors.CodeNotFound, fmt.Sprintf("%s %q not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name)
	return NewCLIError(le, fmt.Sprintf("the %s may live in another storage.path", resource))
}

// NewInvalidArgumentError reports a bad command line argument.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	le := errors.New(errors.CodeInvalidInput, "invalid argument: "+reason, nil).
		WithContext("argument", arg)
	return NewCLIError(le, hintFor(le))
}

// NewConfigError reports a config file that failed to load or validate.
func NewConfigError(err error, path string) *CLIError {
	le := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", path)
	if path == "" {
		return NewCLIError(le, "check the AD4M_ environment and --set overrides")
	}
	return NewCLIError(le, "check "+path+" and its profile overlay")
}

var codeTitles = map[errors.ErrorCode]string{
	errors.CodeInternal:     "Internal Error",
	errors.CodeInvalidInput: "Invalid Input",
	errors.CodeNotFound:     "Not Found",
	errors.CodeStorage:      "Storage Error",
	errors.CodeNetwork:      "Network Error",
	errors.CodeCodec:        "Codec Error",
	errors.CodeTimeout:      "Timeout",
	errors.CodeContextLost:  "Canceled",
	errors.CodeUnavailable:  "Unavailable",
}

// FormatErrorCode returns the title printed for code.
func FormatErrorCode(code errors.ErrorCode) string {
	if title, ok := codeTitles[code]; ok {
		return title
	}
	return string(code)
}

// reportError prints err, choosing a hint from its code when err is not
// already a CLIError.
func reportError(w io.Writer, err error, asJSON bool) {
	var cliErr *CLIError
	if !stderrors.As(err, &cliErr) {
		le := errors.AsLanguageError(err)
		cliErr = NewCLIError(le, hintFor(le))
	}
	cliErr.PrintError(w, asJSON)
}

func hintFor(le *errors.LanguageError) string {
	switch le.Code {
	case errors.CodeTimeout:
		return "raise --timeout"
	case errors.CodeNetwork, errors.CodeUnavailable:
		if le.Recoverable {
			return "the neighbourhood is unreachable; pending changes are pushed on the next sync"
		}
		return "check neighbourhood.relay_token and the relay address"
	case errors.CodeStorage:
		return "check storage.path is writable"
	case errors.CodeInvalidInput:
		return "run 'ad4mlang help' for usage"
	default:
		return ""
	}
}
