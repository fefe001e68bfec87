// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package neighbourhood

import (
	"context"
	"slices"
	"sync"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// MemoryHub is an in-process Log shared by adapters in one process.
type MemoryHub struct {
	mu        sync.RWMutex
	envelopes []Envelope
	byID      map[string]uint64
	members   map[language.DID]struct{}
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		byID:    make(map[string]uint64),
		members: make(map[language.DID]struct{}),
	}
}

var (
	sharedMu   sync.Mutex
	sharedHubs = map[string]*MemoryHub{}
)

// SharedHub returns the process-wide hub for neighbourhood id, creating it
// on first use.
func SharedHub(id string) *MemoryHub {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	hub, ok := sharedHubs[id]
	if !ok {
		hub = NewMemoryHub()
		sharedHubs[id] = hub
	}
	return hub
}

// Join implements Log.
func (h *MemoryHub) Join(_ context.Context, member language.DID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[member] = struct{}{}
	return nil
}

// Append implements Log.
func (h *MemoryHub) Append(_ context.Context, env Envelope) (uint64, error) {
	if err := validateEnvelope(env); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq, ok := h.byID[env.ID]; ok {
		return seq, nil
	}
	env.Seq = uint64(len(h.envelopes)) + 1
	env.Payload = slices.Clone(env.Payload)
	h.envelopes = append(h.envelopes, env)
	h.byID[env.ID] = env.Seq
	h.members[env.Author] = struct{}{}
	return env.Seq, nil
}

// Since implements Log.
func (h *MemoryHub) Since(_ context.Context, after uint64, limit int) ([]Envelope, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if after >= uint64(len(h.envelopes)) {
		return []Envelope{}, nil
	}
	end := min(int(after)+pageSize(limit), len(h.envelopes))
	out := make([]Envelope, 0, end-int(after))
	for _, env := range h.envelopes[after:end] {
		env.Payload = slices.Clone(env.Payload)
		out = append(out, env)
	}
	return out, nil
}

// Members implements Log.
func (h *MemoryHub) Members(_ context.Context) ([]language.DID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]language.DID, 0, len(h.members))
	for member := range h.members {
		out = append(out, member)
	}
	slices.Sort(out)
	return out, nil
}

// Len returns the number of envelopes in the hub.
func (h *MemoryHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.envelopes)
}
