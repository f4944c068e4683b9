package storage

import (
	"fmt"

	"github.com/numbleroot/handoff/config"
	"github.com/numbleroot/handoff/crdt"
	"github.com/pkg/errors"
)

// Variables

// ErrNotFound is returned by Load if no state was
// saved for the requested replica yet.
var ErrNotFound = errors.New("no stored state")

// Structs

// Store saves and loads replica snapshots.
type Store interface {

	// Load returns the snapshot most recently saved
	// for replica id or ErrNotFound.
	Load(id string) (*crdt.Snapshot[string], error)

	// Save replaces the stored snapshot of the
	// replica the snapshot belongs to.
	Save(snap *crdt.Snapshot[string]) error

	// Close releases resources held by the store.
	Close() error
}

// Functions

// Open creates the store configured in cfg. The
// PostgreSQL backend takes its password from env.
func Open(cfg config.Storage, env *config.Env) (Store, error) {

	switch cfg.Adapter {

	case "", config.AdapterFile:

		dir := cfg.Dir
		if dir == "" {
			dir = config.DefaultStorageDir
		}

		return NewFileStore(dir)

	case config.AdapterPostgres:

		password := ""
		if env != nil {
			password = env.PostgresPassword
		}

		pg := cfg.Postgres

		return NewPostgresStore(pg.IP, pg.Port, pg.Database, pg.User, password, pg.SSLMode)
	}

	return nil, fmt.Errorf("[storage.Open] Unknown storage adapter '%s'", cfg.Adapter)
}
