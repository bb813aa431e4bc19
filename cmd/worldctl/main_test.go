package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"worldsim.ai/internal/persistence/fsstore"
	"worldsim.ai/internal/sim/world"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seed(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	st, err := fsstore.Open(dir, fsstore.Options{ArchiveEveryTicks: 10})
	if err != nil {
		t.Fatal(err)
	}
	w := world.New("village", "Village")
	w.Epoch = 10
	if err := st.WriteWorld(ctx, w); err != nil {
		t.Fatal(err)
	}
	w.Epoch = 12
	w.Characters["c-1"] = &world.Character{ID: "c-1", Name: "Ada"}
	if err := st.WriteWorld(ctx, w); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		`{"kind":"tick","epoch":10}`,
		`{"kind":"warning","epoch":11}`,
		`{"kind":"tick","epoch":11}`,
	} {
		if err := st.AppendLog(ctx, "village", []byte(line)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestWorldsAndShow(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "--data", dir, "worlds")
	if err != nil {
		t.Fatalf("worlds: %v", err)
	}
	if !strings.Contains(out, "village") || !strings.Contains(out, "12") {
		t.Fatalf("worlds output: %q", out)
	}
	out, err = run(t, "--data", dir, "show", "village")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, `"name": "Ada"`) {
		t.Fatalf("show output: %q", out)
	}
	if _, err := run(t, "--data", dir, "show", "nowhere"); err == nil {
		t.Fatalf("show of a missing world should fail")
	}
}

func TestTail(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "--data", dir, "tail", "village", "-n", "2")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "warning") {
		t.Fatalf("tail -n 2: %q", lines)
	}
	out, err = run(t, "--data", dir, "tail", "village", "--kind", "tick")
	if err != nil {
		t.Fatalf("tail --kind: %v", err)
	}
	if n := strings.Count(out, `"kind":"tick"`); n != 2 || strings.Contains(out, "warning") {
		t.Fatalf("tail --kind tick: %q", out)
	}
}

func TestExportImport(t *testing.T) {
	dir := seed(t)
	file := filepath.Join(t.TempDir(), "village.snap.zst")
	if _, err := run(t, "--data", dir, "export", "village", "--out", file); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := run(t, "--data", dir, "import", file); err == nil {
		t.Fatalf("import over an existing world without --force should fail")
	}
	out, err := run(t, "--data", dir, "import", file, "--as", "village-copy")
	if err != nil {
		t.Fatalf("import --as: %v", err)
	}
	if !strings.Contains(out, "village-copy epoch=12") {
		t.Fatalf("import output: %q", out)
	}
	out, _ = run(t, "--data", dir, "worlds")
	if !strings.Contains(out, "village-copy") {
		t.Fatalf("imported world not listed: %q", out)
	}
	if _, err := run(t, "--data", dir, "import", file, "--as", "Bad Id"); err == nil {
		t.Fatalf("invalid --as should fail")
	}
}

func TestCheckpointsAndRestore(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "--data", dir, "checkpoints", "village")
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if !strings.Contains(out, "epoch_000000000010") {
		t.Fatalf("checkpoints output: %q", out)
	}
	if _, err := run(t, "--data", dir, "restore", "village", "--epoch", "11"); err == nil {
		t.Fatalf("restore of a missing checkpoint should fail")
	}
	out, err = run(t, "--data", dir, "restore", "village")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "restored village to epoch 10") {
		t.Fatalf("restore output: %q", out)
	}
	out, _ = run(t, "--data", dir, "show", "village")
	if !strings.Contains(out, `"epoch": 10`) || strings.Contains(out, "Ada") {
		t.Fatalf("world not rolled back: %q", out)
	}
	if _, err := run(t, "--data", dir, "--storage", "sqlite", "checkpoints", "village"); err == nil {
		t.Fatalf("checkpoints on sqlite should fail")
	}
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "--sim", "../../configs/sim.yaml", "--worlds", "../../configs/worlds.yaml")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "2 worlds (default village)") {
		t.Fatalf("validate output: %q", out)
	}
	if _, err := run(t, "validate", "--sim", "missing.yaml", "--worlds", "../../configs/worlds.yaml"); err == nil {
		t.Fatalf("missing sim.yaml should fail")
	}
}
