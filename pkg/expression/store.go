// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"context"
	"sync"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// Store persists expressions by address. Expressions are immutable: Put on
// an address that is already present keeps the stored expression and
// reports inserted == false.
type Store interface {
	Get(ctx context.Context, address language.Address) (*language.Expression, bool, error)
	Put(ctx context.Context, address language.Address, expr *language.Expression) (inserted bool, err error)
}

// MemoryStore keeps expressions in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[language.Address]language.Expression
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[language.Address]language.Expression)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, address language.Address) (*language.Expression, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expr, ok := m.items[address]
	if !ok {
		return nil, false, nil
	}
	return &expr, true, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, address language.Address, expr *language.Expression) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[address]; ok {
		return false, nil
	}
	m.items[address] = *expr
	return true, nil
}
