// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for the
// language adapters and their backends.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
)

// ErrorCode classifies language errors for monitoring and recovery.
type ErrorCode string

// Codes shared by the adapters, the neighbourhood backends and the relay.
// The relay maps each one onto a gRPC status and back.
const (
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	// CodeStorage is a failing expression or link store, or a sqlite log.
	CodeStorage ErrorCode = "STORAGE_ERROR"
	// CodeNetwork means the neighbourhood or relay could not be reached.
	CodeNetwork ErrorCode = "NETWORK_ERROR"
	// CodeCodec is a payload that does not encode or decode.
	CodeCodec   ErrorCode = "CODEC_ERROR"
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeContextLost means the caller canceled before the call finished.
	CodeContextLost ErrorCode = "CONTEXT_LOST"
	// CodeUnavailable is a backend refusing calls for now, e.g. behind an
	// open circuit breaker.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// LanguageError carries a code, the failing cause and key/value context.
// Recoverable marks errors a retry may get past.
type LanguageError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// New returns a LanguageError with an empty context map.
func New(code ErrorCode, msg string, cause error) *LanguageError {
	return &LanguageError{Code: code, Message: msg, Err: cause, Context: map[string]any{}}
}

func (e *LanguageError) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *LanguageError) Unwrap() error { return e.Err }

// WithContext records key=value on e and returns e.
func (e *LanguageError) WithContext(key string, value any) *LanguageError {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets Recoverable and returns e.
func (e *LanguageError) WithRecoverable(recoverable bool) *LanguageError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString formats Recoverable for metric attributes.
func (e *LanguageError) RecoverableString() string {
	return strconv.FormatBool(e.Recoverable)
}

// jsonError is the wire shape of a LanguageError in JSON logs.
type jsonError struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Cause       string         `json:"error,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Recoverable bool           `json:"recoverable"`
}

func (e *LanguageError) MarshalJSON() ([]byte, error) {
	out := jsonError{Code: e.Code, Message: e.Message, Context: e.Context, Recoverable: e.Recoverable}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
}

// AsLanguageError returns the first LanguageError in err's chain. Any
// other non-nil error comes back as an unrecoverable CodeInternal wrapper.
func AsLanguageError(err error) *LanguageError {
	if err == nil {
		return nil
	}
	var le *LanguageError
	if stderrors.As(err, &le) {
		return le
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of err, CodeInternal for foreign errors and ""
// for nil.
func CodeOf(err error) ErrorCode {
	if le := AsLanguageError(err); le != nil {
		return le.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
