package core

import (
	"time"

	"menuboard/internal/infra/persistence/memory"
)

type (
	// MemoryStore is the in-memory tree store.
	MemoryStore = memory.Store
	// MemorySnapshot is an exported copy of the memory store state.
	MemorySnapshot = memory.Snapshot
	// StoreOption configures a memory-backed store.
	StoreOption = memory.Option
	// DeletePolicy controls how deleting a category treats its descendants.
	DeletePolicy = memory.DeletePolicy
)

const (
	DeleteOrphan  = memory.DeleteOrphan
	DeleteCascade = memory.DeleteCascade
)

// WithDeletePolicy selects the descendant handling of category deletes.
func WithDeletePolicy(policy DeletePolicy) StoreOption {
	return memory.WithDeletePolicy(policy)
}

// NewMemoryStore constructs an in-memory store evaluating engine on every
// commit.
func NewMemoryStore(engine *RulesEngine, opts ...StoreOption) *MemoryStore {
	return memory.NewStore(engine, opts...)
}

// WithStoreClock overrides the commit timestamps of the store.
func WithStoreClock(now func() time.Time) StoreOption {
	return memory.WithClock(now)
}
