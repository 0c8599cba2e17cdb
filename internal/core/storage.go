package core

import (
	"context"
	"fmt"
	"io"

	"escala/internal/infra/persistence/kvstore"
	"escala/internal/infra/persistence/postgres"
	"escala/internal/infra/persistence/sqlite"
	"escala/pkg/domain"
)

// StorageDriver identifies the key-value backend holding the state snapshot.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// Seed populates the default catalog and services on first run.
	Seed bool
}

// SnapshotStore is a PersistentStore writing its state through to a
// key-value backend. Close releases the backend.
type SnapshotStore struct {
	*kvstore.Store
	closer io.Closer
}

// Close releases the underlying key-value backend.
func (s *SnapshotStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenPersistentStore opens the configured backend (sqlite when unset) and
// loads or seeds the state snapshot.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (*SnapshotStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	var kv domain.KeyValueStore
	var closer io.Closer
	switch cfg.Driver {
	case StorageMemory:
		kv = kvstore.NewMemoryKV()
	case "", StorageSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		kv, closer = db, db
	case StoragePostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		kv, closer = db, db
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	store, err := kvstore.Open(ctx, kv, engine, kvstore.WithSeed(cfg.Seed))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &SnapshotStore{Store: store, closer: closer}, nil
}
