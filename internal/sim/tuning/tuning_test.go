package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TickDurationMs != 1000 || got.MemorySummarizeThreshold != 20 || got.DefaultDecayRate != 0.01 {
		t.Fatalf("defaults: %+v", got)
	}
	if len(got.Rules) != 0 {
		t.Fatalf("defaults should carry no rules")
	}
}

func TestLoad_RulesAndOverrides(t *testing.T) {
	p := writeYAML(t, `
seed: 7
tick_duration_ms: 250
snapshot_every_ticks: 5
event_types:
  duel: {decay_rate: 0.2}
rules:
  - id: meet
    triggers: [probability]
    weight: 0.25
    event_type: encounter
    actors: pair_at_location
    effects:
      - {target: "$0", field: "rel:$1", delta: 0.1}
  - id: bare
    event_type: reflection
`)
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seed != 7 || got.TickDuration().Milliseconds() != 250 || got.SnapshotEveryTicks != 5 {
		t.Fatalf("overrides: %+v", got)
	}
	if got.PollIntervalMs != 50 {
		t.Fatalf("poll default not applied: %d", got.PollIntervalMs)
	}
	if got.DecayRateFor("duel") != 0.2 || got.DecayRateFor("unknown") != 0.01 {
		t.Fatalf("decay lookup wrong")
	}
	if len(got.Rules) != 2 || got.Rules[1].Actors != ActorsNone || got.Rules[1].Triggers[0] != "tick" {
		t.Fatalf("rule defaults: %+v", got.Rules)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"dup id":      "rules:\n  - {id: a, event_type: x}\n  - {id: a, event_type: y}\n",
		"bad trigger": "rules:\n  - {id: a, event_type: x, triggers: [sometimes]}\n",
		"bad picker":  "rules:\n  - {id: a, event_type: x, actors: everyone}\n",
		"bad field":   "rules:\n  - {id: a, event_type: x, effects: [{target: c1, field: hp, delta: 1}]}\n",
		"threshold":   "memory_summarize_threshold: 1\n",
	}
	for name, body := range cases {
		_, err := Load(writeYAML(t, body))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.HasPrefix(err.Error(), "sim.yaml:") {
			t.Fatalf("%s: error not prefixed: %v", name, err)
		}
	}
}

func TestLoad_RepoSimYAML(t *testing.T) {
	tun, err := Load("../../../configs/sim.yaml")
	if err != nil {
		t.Fatalf("load sim.yaml: %v", err)
	}
	if len(tun.Rules) != 2 || tun.Rules[0].ID != "chance_encounter" || tun.Rules[1].Actors != ActorsSingleAlive {
		t.Fatalf("rules: %+v", tun.Rules)
	}
	if !tun.DialogueFor("greet") || tun.ArchiveEveryTicks != 1000 {
		t.Fatalf("tuning: %+v", tun)
	}
}
