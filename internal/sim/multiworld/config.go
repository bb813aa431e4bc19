package multiworld

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"worldsim.ai/internal/sim/world"
)

type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

// WorldSpec is a preset world created on first start when storage does not
// already hold it.
type WorldSpec struct {
	ID                   string         `yaml:"id"`
	Name                 string         `yaml:"name"`
	Background           string         `yaml:"background"`
	DefaultLanguage      string         `yaml:"default_language"`
	ForceDefaultLanguage *bool          `yaml:"force_default_language"`
	TimeScale            float64        `yaml:"time_scale"`
	Locations            []LocationSpec `yaml:"locations,omitempty"`
}

type LocationSpec struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Connections []string `yaml:"connections,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "default",
		Worlds:         []WorldSpec{{ID: "default", Name: "Default World"}},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.DefaultWorldID = strings.TrimSpace(c.DefaultWorldID)
	for i := range c.Worlds {
		w := &c.Worlds[i]
		w.ID = strings.TrimSpace(w.ID)
		if strings.TrimSpace(w.Name) == "" {
			w.Name = w.ID
		}
		if w.TimeScale == 0 {
			w.TimeScale = 1.0
		}
		for j := range w.Locations {
			l := &w.Locations[j]
			l.ID = strings.TrimSpace(l.ID)
			if l.Name == "" {
				l.Name = l.ID
			}
		}
	}
	if c.DefaultWorldID == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if !world.ValidID(w.ID) {
			return fmt.Errorf("invalid world id %q", w.ID)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id %q", w.ID)
		}
		seen[w.ID] = true
		if w.TimeScale <= 0 {
			return fmt.Errorf("world %s: time_scale must be > 0", w.ID)
		}
		locs := map[string]bool{}
		for _, l := range w.Locations {
			if l.ID == "" {
				return fmt.Errorf("world %s: location id required", w.ID)
			}
			if locs[l.ID] {
				return fmt.Errorf("world %s: duplicate location %q", w.ID, l.ID)
			}
			locs[l.ID] = true
		}
		for _, l := range w.Locations {
			for _, to := range l.Connections {
				if !locs[to] {
					return fmt.Errorf("world %s: location %s connects to unknown %q", w.ID, l.ID, to)
				}
			}
		}
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q is not a configured world", c.DefaultWorldID)
	}
	return nil
}

// Options converts a preset into creation options.
func (s WorldSpec) Options() CreateOptions {
	opts := CreateOptions{
		ID:                   s.ID,
		Name:                 s.Name,
		Background:           s.Background,
		DefaultLanguage:      s.DefaultLanguage,
		ForceDefaultLanguage: s.ForceDefaultLanguage,
		TimeScale:            s.TimeScale,
	}
	for _, l := range s.Locations {
		opts.Locations = append(opts.Locations, world.Location{
			ID:          l.ID,
			Name:        l.Name,
			Kind:        l.Kind,
			Connections: append([]string(nil), l.Connections...),
			Tags:        append([]string(nil), l.Tags...),
		})
	}
	return opts
}
