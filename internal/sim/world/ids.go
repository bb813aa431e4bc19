package world

import (
	"crypto/rand"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns "<prefix>-<ulid>"; ids from one process sort by creation.
func NewID(prefix string) string {
	idMu.Lock()
	id := ulid.MustNew(ulid.Now(), idEntropy)
	idMu.Unlock()
	return prefix + "-" + strings.ToLower(id.String())
}
