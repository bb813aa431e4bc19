package archive

import (
	"os"
	"path/filepath"
	"testing"

	"worldsim.ai/internal/persistence/snapshot"
)

func TestArchiveCheckpoint_CopiesOnCadence(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := filepath.Join(worldDir, "world.snap.zst")
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	for _, epoch := range []int64{0, 5, 7} {
		if _, ok, err := ArchiveCheckpoint(worldDir, src, snapshot.Header{WorldID: "w1", Epoch: epoch}, 10); ok || err != nil {
			t.Fatalf("epoch %d: unexpected archive (ok=%v err=%v)", epoch, ok, err)
		}
	}
	if _, ok, _ := ArchiveCheckpoint(worldDir, src, snapshot.Header{WorldID: "w1", Epoch: 10}, 0); ok {
		t.Fatalf("cadence 0 must disable archiving")
	}

	var paths []string
	for _, epoch := range []int64{20, 10} {
		p, ok, err := ArchiveCheckpoint(worldDir, src, snapshot.Header{WorldID: "w1", Epoch: epoch}, 10)
		if err != nil || !ok {
			t.Fatalf("epoch %d: ok=%v err=%v", epoch, ok, err)
		}
		paths = append(paths, p)
	}
	got, err := os.ReadFile(paths[0])
	if err != nil || string(got) != string(want) {
		t.Fatalf("archived content: %q %v", got, err)
	}

	metas, err := ListCheckpoints(worldDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 || metas[0].Epoch != 10 || metas[1].Epoch != 20 || metas[0].Snapshot != "world.snap.zst" {
		t.Fatalf("metas: %+v", metas)
	}
}

func TestListCheckpoints_Missing(t *testing.T) {
	metas, err := ListCheckpoints(t.TempDir())
	if err != nil || len(metas) != 0 {
		t.Fatalf("got %v %v", metas, err)
	}
}
