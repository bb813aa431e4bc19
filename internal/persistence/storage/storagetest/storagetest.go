// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/sim/world"
)

// Run exercises s; it expects an empty store.
func Run(t *testing.T, s storage.Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.ReadWorld(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("read missing: want ErrNotFound, got %v", err)
	}

	w := world.New("w1", "First")
	w.Epoch = 3
	c := &world.Character{ID: "c1", Name: "Ann", LocationID: world.DefaultLocationID}
	world.NormalizeCharacter(c, w)
	c.States["mood"] = 0.5
	w.Characters["c1"] = c
	if err := s.WriteWorld(ctx, w); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Epoch = 4
	if err := s.WriteWorld(ctx, w); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.WriteWorld(ctx, world.New("w0", "Zero")); err != nil {
		t.Fatalf("write w0: %v", err)
	}

	got, err := s.ReadWorld(ctx, "w1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Epoch != 4 || got.Name != "First" || got.Characters["c1"].States["mood"] != 0.5 {
		t.Fatalf("round trip: %+v", got)
	}
	ids, err := s.ListWorlds(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "w0" || ids[1] != "w1" {
		t.Fatalf("list: %v", ids)
	}

	if lines, err := s.TailLog(ctx, "w1", 10, ""); err != nil || len(lines) != 0 {
		t.Fatalf("empty tail: %q %v", lines, err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AppendLog(ctx, "w1", []byte(fmt.Sprintf(`{"seq":%d}`, i+1))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.AppendLog(ctx, "w0", []byte(`{"seq":1}`)); err != nil {
		t.Fatalf("append w0: %v", err)
	}
	lines, err := s.TailLog(ctx, "w1", 3, "")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 3 || string(lines[0]) != `{"seq":3}` || string(lines[2]) != `{"seq":5}` {
		t.Fatalf("tail: %q", lines)
	}
	all, _ := s.TailLog(ctx, "w1", 0, "")
	if len(all) != 5 {
		t.Fatalf("tail all: %d lines", len(all))
	}

	// Rare kinds far behind the newest lines are still found.
	for i := 0; i < 300; i++ {
		line := fmt.Sprintf(`{"seq":%d,"kind":"tick"}`, i+1)
		switch i {
		case 10:
			line = `{"seq":11,"kind":"event","id":"first"}`
		case 20:
			line = `{"seq":21,"kind":"event","id":"second"}`
		}
		if err := s.AppendLog(ctx, "w2", []byte(line)); err != nil {
			t.Fatalf("append w2: %v", err)
		}
	}
	events, err := s.TailLog(ctx, "w2", 10, "event")
	if err != nil {
		t.Fatalf("tail by kind: %v", err)
	}
	if len(events) != 2 || storage.KindOf(events[0]) != "event" || string(events[1]) != `{"seq":21,"kind":"event","id":"second"}` {
		t.Fatalf("tail by kind: %q", events)
	}
	newest, _ := s.TailLog(ctx, "w2", 1, "event")
	if len(newest) != 1 || string(newest[0]) != `{"seq":21,"kind":"event","id":"second"}` {
		t.Fatalf("tail by kind n=1: %q", newest)
	}
	ticks, _ := s.TailLog(ctx, "w2", 5, "tick")
	if len(ticks) != 5 || string(ticks[4]) != `{"seq":300,"kind":"tick"}` {
		t.Fatalf("tail ticks: %q", ticks)
	}
	if none, err := s.TailLog(ctx, "w2", 10, "dialogue"); err != nil || len(none) != 0 {
		t.Fatalf("tail absent kind: %q %v", none, err)
	}
}
