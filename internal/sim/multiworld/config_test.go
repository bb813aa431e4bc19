package multiworld

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_WorldsYAML(t *testing.T) {
	cfg, err := Load("../../../configs/worlds.yaml")
	if err != nil {
		t.Fatalf("load worlds.yaml: %v", err)
	}
	if cfg.DefaultWorldID != "village" {
		t.Fatalf("default world: %q", cfg.DefaultWorldID)
	}
	byID := map[string]WorldSpec{}
	for _, w := range cfg.Worlds {
		byID[w.ID] = w
	}
	v := byID["village"]
	if len(v.Locations) != 3 || v.ForceDefaultLanguage == nil || !*v.ForceDefaultLanguage {
		t.Fatalf("village preset: %+v", v)
	}
	if h := byID["harbor"]; h.TimeScale != 2 || len(h.Locations) != 0 {
		t.Fatalf("harbor preset: %+v", h)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultWorldID != "default" || len(cfg.Worlds) != 1 || cfg.Worlds[0].TimeScale != 1 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "worlds: []\n", "must not be empty"},
		{"bad id", "worlds:\n  - id: ../x\n", "invalid world id"},
		{"dup", "worlds:\n  - id: a\n  - id: a\n", "duplicate world"},
		{"scale", "worlds:\n  - id: a\n    time_scale: -2\n", "time_scale"},
		{"default", "default_world_id: zz\nworlds:\n  - id: a\n", "default_world_id"},
		{"conn", "worlds:\n  - id: a\n    locations:\n      - id: l1\n        connections: [l9]\n", "unknown"},
	}
	dir := t.TempDir()
	for _, tc := range cases {
		p := filepath.Join(dir, tc.name+".yaml")
		if err := os.WriteFile(p, []byte(tc.yaml), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(p)
		if err == nil || !strings.Contains(err.Error(), tc.want) || !strings.HasPrefix(err.Error(), "worlds.yaml: ") {
			t.Fatalf("%s: got %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestConfigNormalize_DefaultsFirstWorld(t *testing.T) {
	cfg := Config{Worlds: []WorldSpec{{ID: " a "}, {ID: "b", TimeScale: 3}}}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.DefaultWorldID != "a" || cfg.Worlds[0].Name != "a" || cfg.Worlds[0].TimeScale != 1 {
		t.Fatalf("normalize: %+v", cfg)
	}
}
