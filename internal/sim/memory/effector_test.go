package memory

import (
	"fmt"
	"strings"
	"testing"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/world"
)

func testWorld(t *testing.T, ids ...string) *world.World {
	t.Helper()
	w := world.New("w1", "test")
	for _, id := range ids {
		c := &world.Character{ID: id, Name: strings.ToUpper(id), LocationID: world.DefaultLocationID}
		world.NormalizeCharacter(c, w)
		w.Characters[id] = c
	}
	return w
}

func addMemory(w *world.World, owner, id string, salience float64, at int64) {
	w.Memories[id] = &world.Memory{ID: id, OwnerID: owner, Summary: "m " + id, Salience: salience, CreatedAt: at, DecayRate: 0.1}
	c := w.Characters[owner]
	c.MemoryIDs = append(c.MemoryIDs, id)
}

func TestApply_ClampsAndWarns(t *testing.T) {
	w := testWorld(t, "c1", "c2")
	for i := 0; i < 10; i++ {
		if err := Apply(w, world.Delta("c1", "state:mood", 10)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if got := w.Characters["c1"].States["mood"]; got != 1 {
		t.Fatalf("mood=%v want 1", got)
	}
	if err := Apply(w, world.Set("c1", "rel:c2", -3)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := w.Characters["c1"].Relationships["c2"]; got != -1 {
		t.Fatalf("rel=%v want -1", got)
	}

	bad := []world.Effect{
		world.Delta("ghost", "state:mood", 1),
		world.Delta("c1", "hp", 1),
		{Target: "c1", Field: "state:mood"},
	}
	for _, ef := range bad {
		if err := Apply(w, ef); !protocol.IsCode(err, protocol.WarnEffect) {
			t.Fatalf("%+v: expected warning, got %v", ef, err)
		}
	}
}

func TestRemember_OnePerKnownActor(t *testing.T) {
	w := testWorld(t, "c1", "c2")
	ev := &world.Event{ID: "e1", Type: "greet", LocationID: world.DefaultLocationID, Actors: []string{"c1", "c2", "ghost", "c1"}, Origin: world.OriginManual}
	mems := Remember(w, ev, 4, 0.02)
	if len(mems) != 2 {
		t.Fatalf("memories=%d want 2", len(mems))
	}
	for _, m := range mems {
		if m.Salience != 1 || m.DecayRate != 0.02 || m.CreatedAt != 4 {
			t.Fatalf("memory fields: %+v", m)
		}
		if m.Summary != "greet at Square with C1, C2, ghost, C1" {
			t.Fatalf("summary: %q", m.Summary)
		}
	}
	if len(w.Characters["c1"].MemoryIDs) != 1 || len(w.Characters["c2"].MemoryIDs) != 1 {
		t.Fatalf("memory ids not appended")
	}
}

func TestDecay_FloorsAtZero(t *testing.T) {
	w := testWorld(t, "c1")
	addMemory(w, "c1", "m1", 0.15, 0)
	Decay(w)
	Decay(w)
	if got := w.Memories["m1"].Salience; got != 0 {
		t.Fatalf("salience=%v want 0", got)
	}
}

func TestSummarize_PicksLowestThenOldest(t *testing.T) {
	w := testWorld(t, "c1")
	addMemory(w, "c1", "m1", 0.9, 1)
	addMemory(w, "c1", "m2", 0.2, 5)
	addMemory(w, "c1", "m3", 0.2, 2)
	addMemory(w, "c1", "m4", 0.5, 0)

	merged, err := Summarize(w, "c1", 3, 10, nil)
	if err != nil || merged == nil {
		t.Fatalf("summarize: %v", err)
	}
	if merged.Summary != "m m3; m m2; m m4" {
		t.Fatalf("summary order: %q", merged.Summary)
	}
	if merged.Salience != 0.5 || !merged.HasTag(TagSummary) || merged.CreatedAt != 10 {
		t.Fatalf("merged fields: %+v", merged)
	}
	ids := w.Characters["c1"].MemoryIDs
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != merged.ID {
		t.Fatalf("memory ids: %v", ids)
	}
	for _, gone := range []string{"m2", "m3", "m4"} {
		if _, ok := w.Memories[gone]; ok {
			t.Fatalf("%s not removed", gone)
		}
	}
}

func TestSummarize_Errors(t *testing.T) {
	w := testWorld(t, "c1")
	if _, err := Summarize(w, "nobody", 5, 0, nil); !protocol.IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("unknown character: %v", err)
	}
	if _, err := Summarize(w, "c1", 1, 0, nil); !protocol.IsCode(err, protocol.ErrInvalidArgument) {
		t.Fatalf("limit 1: %v", err)
	}
	addMemory(w, "c1", "m1", 1, 0)
	if m, err := Summarize(w, "c1", 5, 0, nil); m != nil || err != nil {
		t.Fatalf("single memory should be a no-op: %v %v", m, err)
	}
}

func TestAutoSummarize_BringsCountToThreshold(t *testing.T) {
	w := testWorld(t, "c1", "c2")
	for i := 0; i < 8; i++ {
		addMemory(w, "c1", fmt.Sprintf("a%d", i), 1, int64(i))
	}
	for i := 0; i < 3; i++ {
		addMemory(w, "c2", fmt.Sprintf("b%d", i), 1, int64(i))
	}
	out := AutoSummarize(w, 5, 9)
	if len(out) != 1 {
		t.Fatalf("summaries=%d want 1", len(out))
	}
	if n := len(w.MemoriesOf("c1")); n != 5 {
		t.Fatalf("c1 memories=%d want 5", n)
	}
	if n := len(w.MemoriesOf("c2")); n != 3 {
		t.Fatalf("c2 memories=%d want 3", n)
	}
	if got := RecentSummaries(w, "c1", 3); len(got) != 1 || !strings.HasPrefix(got[0], "m a0; m a1") {
		t.Fatalf("recent summaries: %v", got)
	}
}
