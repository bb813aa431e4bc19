package main

import (
	"context"
	"fmt"

	"worldsim.ai/internal/persistence/backend"
	"worldsim.ai/internal/persistence/storage"
)

type storeOptions struct {
	dataDir string
	kind    string
	dsn     string
}

func (o *storeOptions) open(ctx context.Context) (storage.Storage, error) {
	if o.kind == backend.KindMemory {
		return nil, fmt.Errorf("memory storage has nothing to administer")
	}
	return backend.Open(ctx, backend.Options{Kind: o.kind, DataDir: o.dataDir, DSN: o.dsn})
}
