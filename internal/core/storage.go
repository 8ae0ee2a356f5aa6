package core

import (
	"context"
	"fmt"

	"giftmatch/internal/infra/persistence/memory"
	"giftmatch/internal/infra/persistence/postgres"
	"giftmatch/internal/infra/persistence/sqlite"
	"giftmatch/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a record store backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the configured backend. An empty driver selects
// sqlite. The returned close function releases the backend's resources.
func OpenPersistentStore(ctx context.Context, opts StorageOptions) (domain.PersistentStore, func() error, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), func() error { return nil }, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
