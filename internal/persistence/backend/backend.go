// Package backend picks a storage.Storage implementation by name.
package backend

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"worldsim.ai/internal/persistence/fsstore"
	"worldsim.ai/internal/persistence/pgdb"
	"worldsim.ai/internal/persistence/sqlitedb"
	"worldsim.ai/internal/persistence/storage"
)

const (
	KindFS       = "fs"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

type Options struct {
	Kind    string
	DataDir string
	// DSN is the postgres connection string, or the sqlite file path
	// (defaults to <data>/worldsim.sqlite).
	DSN               string
	ArchiveEveryTicks int64
	Logger            *log.Logger
}

func Open(ctx context.Context, opts Options) (storage.Storage, error) {
	switch opts.Kind {
	case "", KindFS:
		return fsstore.Open(opts.DataDir, fsstore.Options{
			ArchiveEveryTicks: opts.ArchiveEveryTicks,
			Logger:            opts.Logger,
		})
	case KindSQLite:
		path := opts.DSN
		if path == "" {
			path = filepath.Join(opts.DataDir, "worldsim.sqlite")
		}
		return sqlitedb.Open(path)
	case KindPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres storage needs a dsn")
		}
		return pgdb.New(ctx, opts.DSN)
	case KindMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", opts.Kind)
	}
}
