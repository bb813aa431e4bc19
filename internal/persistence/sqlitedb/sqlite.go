package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"worldsim.ai/internal/persistence/snapshot"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/sim/world"
)

// DB keeps world documents and narrative lines in a single SQLite file.
type DB struct {
	db *sql.DB
}

var _ storage.Storage = (*DB)(nil)

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worlds (
			id TEXT PRIMARY KEY,
			epoch INTEGER NOT NULL,
			doc BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS narrative (
			world_id TEXT NOT NULL,
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			line TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_narrative_world_seq ON narrative(world_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_narrative_world_kind_seq ON narrative(world_id, kind, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) WriteWorld(ctx context.Context, w *world.World) error {
	b, err := snapshot.Marshal(w)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO worlds(id,epoch,doc,updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET epoch=excluded.epoch, doc=excluded.doc, updated_at=excluded.updated_at`,
		w.ID, w.Epoch, b, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (d *DB) ReadWorld(ctx context.Context, id string) (*world.World, error) {
	var b []byte
	err := d.db.QueryRowContext(ctx, `SELECT doc FROM worlds WHERE id=?`, id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_, w, err := snapshot.Unmarshal(b)
	return w, err
}

func (d *DB) ListWorlds(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM worlds ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) AppendLog(ctx context.Context, worldID string, line []byte) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO narrative(world_id,kind,line) VALUES(?,?,?)`,
		worldID, storage.KindOf(line), string(line))
	return err
}

func (d *DB) TailLog(ctx context.Context, worldID string, n int, kind string) ([][]byte, error) {
	q := `SELECT line FROM narrative WHERE world_id=?`
	args := []any{worldID}
	if kind != "" {
		q += ` AND kind=?`
		args = append(args, kind)
	}
	q += ` ORDER BY seq DESC`
	if n > 0 {
		q += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, []byte(s))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
