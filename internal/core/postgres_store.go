package core

import (
	"context"

	"menuboard/internal/infra/persistence/postgres"
)

// NewPostgresStore constructs a Postgres-backed store from the provided DSN.
func NewPostgresStore(ctx context.Context, dsn string, engine *RulesEngine, opts ...StoreOption) (*postgres.Store, error) {
	return postgres.NewStore(ctx, dsn, engine, opts...)
}
