// Package multiworld keeps the registry of persisted worlds and switches the
// single active runtime between them.
package multiworld

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"worldsim.ai/internal/gen"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/sim/world"
)

type Options struct {
	Tuning    tuning.Tuning
	Storage   storage.Storage
	Generator gen.Generator
	Logger    *log.Logger
}

type CreateOptions struct {
	ID                   string
	Name                 string
	Background           string
	DefaultLanguage      string
	ForceDefaultLanguage *bool
	TimeScale            float64
	// Locations replaces the default square when non-empty.
	Locations []world.Location
}

type Manager struct {
	mu sync.Mutex

	rt      *runtime.Runtime
	storage storage.Storage
	logger  *log.Logger
	names   map[string]string

	closeOnce sync.Once
	closeErr  error
}

// Open loads the world registry from storage, creates any configured preset
// that is missing, and activates the default world.
func Open(ctx context.Context, cfg Config, opts Options) (*Manager, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	m := &Manager{
		storage: opts.Storage,
		logger:  opts.Logger,
		names:   map[string]string{},
	}
	ids, err := m.storage.ListWorlds(ctx)
	if err != nil {
		return nil, protocol.External("list worlds", err)
	}
	for _, id := range ids {
		m.names[id] = id
		if w, err := m.storage.ReadWorld(ctx, id); err == nil {
			m.names[id] = w.Name
		} else {
			m.logger.Printf("world %s unreadable: %v", id, err)
		}
	}
	for _, spec := range cfg.Worlds {
		if _, ok := m.names[spec.ID]; ok {
			continue
		}
		w, err := build(spec.Options())
		if err != nil {
			return nil, err
		}
		if err := m.storage.WriteWorld(ctx, w); err != nil {
			return nil, protocol.External("create world "+w.ID, err)
		}
		m.names[w.ID] = w.Name
		m.logger.Printf("created preset world %s", w.ID)
	}

	active, err := m.storage.ReadWorld(ctx, cfg.DefaultWorldID)
	if err != nil {
		return nil, protocol.External("load world "+cfg.DefaultWorldID, err)
	}
	rt, err := runtime.New(active, runtime.Options{
		Tuning:    opts.Tuning,
		Storage:   opts.Storage,
		Generator: opts.Generator,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	m.rt = rt
	m.logger.Printf("active world: %s (epoch=%d, worlds=%d)", active.ID, active.Epoch, len(m.names))
	return m, nil
}

func build(opts CreateOptions) (*world.World, error) {
	id := strings.TrimSpace(opts.ID)
	if !world.ValidID(id) {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "invalid world id %q", opts.ID)
	}
	if opts.TimeScale < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "time_scale must be > 0, got %v", opts.TimeScale)
	}
	w := world.New(id, strings.TrimSpace(opts.Name))
	w.Background = opts.Background
	if opts.DefaultLanguage != "" {
		w.DefaultLanguage = opts.DefaultLanguage
	}
	if opts.ForceDefaultLanguage != nil {
		w.ForceDefaultLanguage = *opts.ForceDefaultLanguage
	}
	if opts.TimeScale > 0 {
		w.TimeScale = opts.TimeScale
	}
	if len(opts.Locations) > 0 {
		w.Locations = map[string]*world.Location{}
		for _, l := range opts.Locations {
			if l.ID == "" {
				return nil, protocol.Errorf(protocol.ErrInvalidArgument, "location id required")
			}
			if _, dup := w.Locations[l.ID]; dup {
				return nil, protocol.Errorf(protocol.ErrAlreadyExists, "location %s", l.ID)
			}
			if l.Name == "" {
				l.Name = l.ID
			}
			w.Locations[l.ID] = l.Clone()
		}
	}
	w.Normalize()
	return w, nil
}

// Runtime is the active world's runtime. It stays the same object across
// Select; only the world inside it changes.
func (m *Manager) Runtime() *runtime.Runtime { return m.rt }

func (m *Manager) Active() string { return m.rt.WorldID() }

// Create registers and persists a new world without activating it.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*world.World, error) {
	w, err := build(opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[w.ID]; ok {
		return nil, protocol.Errorf(protocol.ErrAlreadyExists, "world %s", w.ID)
	}
	if err := m.storage.WriteWorld(ctx, w); err != nil {
		m.logger.Printf("create world %s: %v", w.ID, err)
		return nil, protocol.External("create world", err)
	}
	m.names[w.ID] = w.Name
	m.logger.Printf("created world %s", w.ID)
	return w.Clone(), nil
}

// Select flushes the active world and loads id in its place. An unknown id
// fails before anything is written.
func (m *Manager) Select(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[id]; !ok {
		return protocol.Errorf(protocol.ErrNotFound, "world %s", id)
	}
	if id == m.rt.WorldID() {
		return nil
	}
	return m.rt.Swap(ctx, func(current *world.World) (*world.World, error) {
		next, err := m.storage.ReadWorld(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, protocol.Errorf(protocol.ErrNotFound, "world %s", id)
		}
		if err != nil {
			return nil, protocol.External("load world "+id, err)
		}
		if err := m.storage.WriteWorld(ctx, current); err != nil {
			m.logger.Printf("flush world %s before select: %v", current.ID, err)
			return nil, protocol.External("persist world "+current.ID, err)
		}
		m.names[current.ID] = current.Name
		return next, nil
	})
}

// List returns every known world sorted by id.
func (m *Manager) List() protocol.WorldList {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := m.rt.WorldID()
	ids := make([]string, 0, len(m.names))
	for id := range m.names {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := protocol.WorldList{ActiveWorldID: active, Worlds: make([]protocol.WorldRef, 0, len(ids))}
	for _, id := range ids {
		out.Worlds = append(out.Worlds, protocol.WorldRef{WorldID: id, Name: m.names[id], Active: id == active})
	}
	return out
}

func (m *Manager) Persist(ctx context.Context) error {
	return m.rt.Persist(ctx)
}

// Close stops the loop and flushes the active world. Storage is left open;
// it belongs to the caller.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		_ = m.rt.Stop()
		m.closeErr = m.rt.Persist(ctx)
	})
	return m.closeErr
}
