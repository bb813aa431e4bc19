package pgdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"worldsim.ai/internal/persistence/snapshot"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/sim/world"
)

var _ storage.Storage = (*Client)(nil)

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	c := &Client{pool: pool}
	if err := c.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// EnsureSchema is idempotent.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS worlds (
    id         TEXT PRIMARY KEY,
    epoch      BIGINT NOT NULL,
    doc        BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS narrative (
    seq      BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    world_id TEXT NOT NULL,
    kind     TEXT NOT NULL DEFAULT '',
    line     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_narrative_world_seq ON narrative (world_id, seq);
CREATE INDEX IF NOT EXISTS idx_narrative_world_kind_seq ON narrative (world_id, kind, seq);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

func (c *Client) WriteWorld(ctx context.Context, w *world.World) error {
	b, err := snapshot.Marshal(w)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `
INSERT INTO worlds (id, epoch, doc, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET epoch = EXCLUDED.epoch, doc = EXCLUDED.doc, updated_at = now()`,
		w.ID, w.Epoch, b)
	if err != nil {
		return fmt.Errorf("writing world %s: %w", w.ID, err)
	}
	return nil
}

func (c *Client) ReadWorld(ctx context.Context, id string) (*world.World, error) {
	var b []byte
	err := c.pool.QueryRow(ctx, `SELECT doc FROM worlds WHERE id = $1`, id).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading world %s: %w", id, err)
	}
	_, w, err := snapshot.Unmarshal(b)
	return w, err
}

func (c *Client) ListWorlds(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM worlds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (c *Client) AppendLog(ctx context.Context, worldID string, line []byte) error {
	_, err := c.pool.Exec(ctx, `INSERT INTO narrative (world_id, kind, line) VALUES ($1, $2, $3)`,
		worldID, storage.KindOf(line), string(line))
	return err
}

func (c *Client) TailLog(ctx context.Context, worldID string, n int, kind string) ([][]byte, error) {
	limit := any(nil)
	if n > 0 {
		limit = n
	}
	rows, err := c.pool.Query(ctx, `
SELECT line FROM (
    SELECT seq, line FROM narrative
    WHERE world_id = $1 AND ($3::text = '' OR kind = $3)
    ORDER BY seq DESC LIMIT $2
) t ORDER BY seq`, worldID, limit, kind)
	if err != nil {
		return nil, fmt.Errorf("tailing narrative: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out, nil
}
