// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package language

import (
	"errors"
	"sync"
)

// DefaultName is the name the language registers under when none is set.
const DefaultName = "my-ad4m-language"

// Language is the descriptor returned to the host.
type Language struct {
	Name              string
	ExpressionAdapter ExpressionAdapter
	LinksAdapter      LinkSyncAdapter
	Interactions      func(expr *Expression) []Interaction

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// NoInteractions is the Interactions func for languages that offer none.
func NoInteractions(*Expression) []Interaction {
	return []Interaction{}
}

// OnClose registers fn to run when the language is closed. Closers run in
// reverse registration order.
func (l *Language) OnClose(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, fn)
}

// Close releases every resource registered with OnClose. Calling it
// twice is a no-op.
func (l *Language) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	closers := l.closers
	l.closers = nil
	l.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
