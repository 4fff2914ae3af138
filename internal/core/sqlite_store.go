package core

import "menuboard/internal/infra/persistence/sqlite"

// NewSQLiteStore constructs a SQLite-backed store at path (empty for the
// default file).
func NewSQLiteStore(path string, engine *RulesEngine, opts ...StoreOption) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine, opts...)
}
