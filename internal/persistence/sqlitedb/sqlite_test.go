package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"

	"worldsim.ai/internal/persistence/storage/storagetest"
	"worldsim.ai/internal/sim/world"
)

func TestDB_Contract(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "worldsim.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	storagetest.Run(t, db)
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "w.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w := world.New("w1", "one")
	w.Epoch = 7
	if err := db.WriteWorld(ctx, w); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendLog(ctx, "w1", []byte(`{"seq":1,"kind":"tick"}`)); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	got, err := db2.ReadWorld(ctx, "w1")
	if err != nil || got.Epoch != 7 {
		t.Fatalf("reopen: %+v %v", got, err)
	}
	var kind string
	if err := db2.db.QueryRow(`SELECT kind FROM narrative WHERE world_id='w1'`).Scan(&kind); err != nil || kind != "tick" {
		t.Fatalf("kind=%q err=%v", kind, err)
	}
}
