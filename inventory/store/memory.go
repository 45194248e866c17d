// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/lot-ledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the last saved snapshot. Saves and loads copy, so neither
// side can mutate the other's dataset.
type Memory struct {
	mu    sync.RWMutex
	ds    *inventory.Dataset
	saves int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (*inventory.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ds == nil {
		return nil, nil
	}
	return m.ds.Clone(), nil
}

func (m *Memory) Save(_ context.Context, ds *inventory.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ds = ds.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ inventory.Store = (*Memory)(nil)
