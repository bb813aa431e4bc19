package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"worldsim.ai/internal/persistence/archive"
	plog "worldsim.ai/internal/persistence/log"
	"worldsim.ai/internal/persistence/snapshot"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/sim/world"
)

const (
	docName      = "world.snap.zst"
	narrativeDir = "narrative"
	logPrefix    = "narrative"
)

type Options struct {
	// ArchiveEveryTicks copies the document into archives/ on matching epochs; 0 disables.
	ArchiveEveryTicks int64
	Logger            *log.Logger
}

// Store lays worlds out as <base>/worlds/<id>/{world.snap.zst,narrative/,archives/}.
type Store struct {
	base string
	opts Options

	docMu sync.Mutex

	logMu   sync.Mutex
	writers map[string]*plog.JSONLZstdWriter
}

var _ storage.Storage = (*Store)(nil)

func Open(base string, opts Options) (*Store, error) {
	if base == "" {
		return nil, fmt.Errorf("fsstore: empty base dir")
	}
	if err := os.MkdirAll(filepath.Join(base, "worlds"), 0o755); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Store{base: base, opts: opts, writers: map[string]*plog.JSONLZstdWriter{}}, nil
}

func (s *Store) WorldDir(id string) string {
	return filepath.Join(s.base, "worlds", id)
}

func checkID(id string) error {
	if !world.ValidID(id) {
		return fmt.Errorf("fsstore: invalid world id %q", id)
	}
	return nil
}

func (s *Store) WriteWorld(_ context.Context, w *world.World) error {
	if err := checkID(w.ID); err != nil {
		return err
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()

	dir := s.WorldDir(w.ID)
	path := filepath.Join(dir, docName)
	if err := snapshot.WriteFile(path, w); err != nil {
		return err
	}
	h := snapshot.Header{Version: snapshot.Version, WorldID: w.ID, Epoch: w.Epoch}
	if p, ok, err := archive.ArchiveCheckpoint(dir, path, h, s.opts.ArchiveEveryTicks); err != nil {
		s.opts.Logger.Printf("checkpoint archive failed (world=%s epoch=%d): %v", w.ID, w.Epoch, err)
	} else if ok {
		s.opts.Logger.Printf("checkpoint archived: %s", p)
	}
	return nil
}

func (s *Store) ReadWorld(_ context.Context, id string) (*world.World, error) {
	if err := checkID(id); err != nil {
		return nil, storage.ErrNotFound
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	_, w, err := snapshot.ReadFile(filepath.Join(s.WorldDir(id), docName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return w, err
}

func (s *Store) ListWorlds(context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, "worlds"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.base, "worlds", e.Name(), docName)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) writer(id string) *plog.JSONLZstdWriter {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	w := s.writers[id]
	if w == nil {
		w = plog.NewJSONLZstdWriter(filepath.Join(s.WorldDir(id), narrativeDir), logPrefix)
		s.writers[id] = w
	}
	return w
}

func (s *Store) AppendLog(_ context.Context, worldID string, line []byte) error {
	if err := checkID(worldID); err != nil {
		return err
	}
	return s.writer(worldID).WriteLine(line)
}

func (s *Store) TailLog(_ context.Context, worldID string, n int, kind string) ([][]byte, error) {
	if err := checkID(worldID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.WorldDir(worldID), narrativeDir)
	if kind == "" {
		return plog.Tail(dir, logPrefix, n)
	}
	return plog.TailFunc(dir, logPrefix, n, func(line []byte) bool { return storage.KindOf(line) == kind })
}

func (s *Store) Close() error {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	var errs []error
	for id, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log %s: %w", id, err))
		}
	}
	s.writers = map[string]*plog.JSONLZstdWriter{}
	return errors.Join(errs...)
}
