package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"worldsim.ai/internal/sim/world"
)

var ErrInjected = errors.New("storage: injected failure")

// Memory keeps documents and logs in process. The Fail* switches make
// individual operations fail, for exercising degraded paths.
type Memory struct {
	mu     sync.Mutex
	worlds map[string]*world.World
	logs   map[string][][]byte

	FailWrites  atomic.Bool
	FailReads   atomic.Bool
	FailAppends atomic.Bool
	FailTails   atomic.Bool

	Writes  atomic.Int64
	Appends atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{worlds: map[string]*world.World{}, logs: map[string][][]byte{}}
}

func (m *Memory) WriteWorld(_ context.Context, w *world.World) error {
	if m.FailWrites.Load() {
		return ErrInjected
	}
	m.mu.Lock()
	m.worlds[w.ID] = w.Clone()
	m.mu.Unlock()
	m.Writes.Add(1)
	return nil
}

func (m *Memory) ReadWorld(_ context.Context, id string) (*world.World, error) {
	if m.FailReads.Load() {
		return nil, ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worlds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (m *Memory) ListWorlds(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.worlds))
	for id := range m.worlds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) AppendLog(_ context.Context, worldID string, line []byte) error {
	if m.FailAppends.Load() {
		return ErrInjected
	}
	m.mu.Lock()
	m.logs[worldID] = append(m.logs[worldID], append([]byte(nil), line...))
	m.mu.Unlock()
	m.Appends.Add(1)
	return nil
}

func (m *Memory) TailLog(_ context.Context, worldID string, n int, kind string) ([][]byte, error) {
	if m.FailTails.Load() {
		return nil, ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.logs[worldID]
	var rev [][]byte
	for i := len(lines) - 1; i >= 0 && (n <= 0 || len(rev) < n); i-- {
		if kind != "" && KindOf(lines[i]) != kind {
			continue
		}
		rev = append(rev, append([]byte(nil), lines[i]...))
	}
	out := make([][]byte, len(rev))
	for i, l := range rev {
		out[len(rev)-1-i] = l
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
