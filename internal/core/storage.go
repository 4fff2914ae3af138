package core

import (
	"context"
	"fmt"
	"os"

	"menuboard/internal/infra/persistence/memory"
	"menuboard/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
//
//	MENUBOARD_STORAGE_DRIVER: memory|sqlite|postgres (default memory)
//	MENUBOARD_SQLITE_PATH: path to sqlite file (default ./menuboard.db)
//	MENUBOARD_POSTGRES_DSN: postgres DSN when driver=postgres
//	MENUBOARD_DELETE_POLICY: orphan|cascade (default orphan)
func OpenPersistentStore(ctx context.Context, engine *RulesEngine) (PersistentStore, error) {
	policy, err := memory.ParseDeletePolicy(os.Getenv("MENUBOARD_DELETE_POLICY"))
	if err != nil {
		return nil, err
	}
	opts := []StoreOption{WithDeletePolicy(policy)}

	driver := os.Getenv("MENUBOARD_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageMemory)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return NewMemoryStore(engine, opts...), nil
	case StorageSQLite:
		return NewSQLiteStore(os.Getenv("MENUBOARD_SQLITE_PATH"), engine, opts...)
	case StoragePostgres:
		return NewPostgresStore(ctx, os.Getenv("MENUBOARD_POSTGRES_DSN"), engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
