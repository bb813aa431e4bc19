package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"worldsim.ai/internal/sim/world"
)

type Tuning struct {
	Seed int64 `yaml:"seed"`

	TickDurationMs     int   `yaml:"tick_duration_ms"`
	PollIntervalMs     int   `yaml:"poll_interval_ms"`
	SnapshotEveryTicks int64 `yaml:"snapshot_every_ticks"`
	ArchiveEveryTicks  int64 `yaml:"archive_every_ticks"`
	LogRingSize        int   `yaml:"log_ring_size"`

	MemorySummarizeThreshold int     `yaml:"memory_summarize_threshold"`
	DefaultDecayRate         float64 `yaml:"default_decay_rate"`
	GenerationTimeoutMs      int     `yaml:"generation_timeout_ms"`

	EventTypes map[string]EventTypeSpec `yaml:"event_types"`
	Rules      []RuleSpec               `yaml:"rules"`
}

type EventTypeSpec struct {
	DecayRate float64 `yaml:"decay_rate"`
	// Dialogue asks the generator for reactions when the event resolves.
	Dialogue bool `yaml:"dialogue"`
}

// RuleSpec is a data-only fate rule, compiled by the fate package.
type RuleSpec struct {
	ID         string         `yaml:"id"`
	Triggers   []string       `yaml:"triggers"`
	Weight     float64        `yaml:"weight"`
	EveryTicks int64          `yaml:"every_ticks"`
	WorldTag   string         `yaml:"world_tag"`
	EventType  string         `yaml:"event_type"`
	Actors     string         `yaml:"actors"`
	DelayTicks int64          `yaml:"delay_ticks"`
	Payload    map[string]any `yaml:"payload"`
	Effects    []EffectSpec   `yaml:"effects"`
}

// EffectSpec targets may use $0/$1 to refer to the picked actors.
type EffectSpec struct {
	Target string   `yaml:"target"`
	Field  string   `yaml:"field"`
	Delta  *float64 `yaml:"delta"`
	Value  *float64 `yaml:"value"`
}

const (
	ActorsNone           = "none"
	ActorsSingleAlive    = "single_alive"
	ActorsPairAtLocation = "pair_at_location"
)

func Defaults() Tuning {
	return Tuning{
		Seed:                     1337,
		TickDurationMs:           1000,
		PollIntervalMs:           50,
		SnapshotEveryTicks:       10,
		LogRingSize:              500,
		MemorySummarizeThreshold: 20,
		DefaultDecayRate:         0.01,
		GenerationTimeoutMs:      15000,
		EventTypes: map[string]EventTypeSpec{
			"greet":      {DecayRate: 0.02, Dialogue: true},
			"encounter":  {DecayRate: 0.01, Dialogue: true},
			"reflection": {DecayRate: 0.005, Dialogue: true},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("sim.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("sim.yaml: %w", err)
	}
	return t, nil
}

// ApplyDefaults fills zero values; Load calls it after decoding.
func (t *Tuning) ApplyDefaults() {
	d := Defaults()
	if t.TickDurationMs <= 0 {
		t.TickDurationMs = d.TickDurationMs
	}
	if t.PollIntervalMs <= 0 {
		t.PollIntervalMs = d.PollIntervalMs
	}
	if t.LogRingSize <= 0 {
		t.LogRingSize = d.LogRingSize
	}
	if t.MemorySummarizeThreshold <= 0 {
		t.MemorySummarizeThreshold = d.MemorySummarizeThreshold
	}
	if t.DefaultDecayRate < 0 {
		t.DefaultDecayRate = d.DefaultDecayRate
	}
	if t.GenerationTimeoutMs <= 0 {
		t.GenerationTimeoutMs = d.GenerationTimeoutMs
	}
	if t.EventTypes == nil {
		t.EventTypes = map[string]EventTypeSpec{}
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.Actors == "" {
			r.Actors = ActorsNone
		}
		if len(r.Triggers) == 0 {
			r.Triggers = []string{"tick"}
		}
	}
}

func (t Tuning) Validate() error {
	if t.SnapshotEveryTicks < 0 || t.ArchiveEveryTicks < 0 {
		return fmt.Errorf("snapshot/archive cadence must be >= 0")
	}
	if t.MemorySummarizeThreshold < 2 {
		return fmt.Errorf("memory_summarize_threshold must be >= 2")
	}
	for typ, et := range t.EventTypes {
		if et.DecayRate < 0 {
			return fmt.Errorf("event_types.%s: decay_rate must be >= 0", typ)
		}
	}
	seen := map[string]bool{}
	for i, r := range t.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d]: missing id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if r.Weight < 0 {
			return fmt.Errorf("rule %s: weight must be >= 0", r.ID)
		}
		if r.EventType == "" {
			return fmt.Errorf("rule %s: missing event_type", r.ID)
		}
		for _, trig := range r.Triggers {
			switch trig {
			case "tick", "probability", "world_tag":
			default:
				return fmt.Errorf("rule %s: unknown trigger %q", r.ID, trig)
			}
		}
		switch r.Actors {
		case ActorsNone, ActorsSingleAlive, ActorsPairAtLocation:
		default:
			return fmt.Errorf("rule %s: unknown actors picker %q", r.ID, r.Actors)
		}
		for j, e := range r.Effects {
			if (e.Delta == nil) == (e.Value == nil) {
				return fmt.Errorf("rule %s effects[%d]: need exactly one of delta or value", r.ID, j)
			}
			if _, err := world.ParseSelector(e.Field); err != nil {
				return fmt.Errorf("rule %s effects[%d]: %w", r.ID, j, err)
			}
		}
	}
	return nil
}

func (t Tuning) TickDuration() time.Duration {
	return time.Duration(t.TickDurationMs) * time.Millisecond
}

func (t Tuning) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

func (t Tuning) GenerationTimeout() time.Duration {
	return time.Duration(t.GenerationTimeoutMs) * time.Millisecond
}

// DecayRateFor falls back to the default rate for unlisted event types.
func (t Tuning) DecayRateFor(eventType string) float64 {
	if et, ok := t.EventTypes[eventType]; ok {
		return et.DecayRate
	}
	return t.DefaultDecayRate
}

func (t Tuning) DialogueFor(eventType string) bool {
	return t.EventTypes[eventType].Dialogue
}
