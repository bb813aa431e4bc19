package storage

import (
	"context"
	"encoding/json"
	"errors"

	"worldsim.ai/internal/sim/world"
)

var ErrNotFound = errors.New("storage: not found")

// Storage holds one world document and one append-only log stream per world id.
type Storage interface {
	WriteWorld(ctx context.Context, w *world.World) error
	ReadWorld(ctx context.Context, id string) (*world.World, error)
	ListWorlds(ctx context.Context) ([]string, error)

	AppendLog(ctx context.Context, worldID string, line []byte) error
	// TailLog returns up to n of the newest lines, oldest first; n <= 0 means
	// all. A non-empty kind keeps only lines whose KindOf matches, and n
	// counts matches rather than lines scanned.
	TailLog(ctx context.Context, worldID string, n int, kind string) ([][]byte, error)

	Close() error
}

// KindOf pulls the "kind" field out of a narrative line for indexing.
func KindOf(line []byte) string {
	var probe struct {
		Kind string `json:"kind"`
	}
	if json.Unmarshal(line, &probe) != nil {
		return ""
	}
	return probe.Kind
}
