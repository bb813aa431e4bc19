package world

import (
	"sort"

	"worldsim.ai/internal/protocol"
)

const (
	DefaultLanguage   = "zh-CN"
	DefaultAge        = 18
	DefaultRole       = "villager"
	DefaultLocationID = "loc-1"
)

type Origin string

const (
	OriginFate   Origin = "fate"
	OriginManual Origin = "manual"
	OriginSystem Origin = "system"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginFate, OriginManual, OriginSystem:
		return true
	}
	return false
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// Axes is an open numeric mapping (attributes, traits, states).
type Axes map[string]float64

type World struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Background           string         `json:"background,omitempty"`
	Epoch                int64          `json:"epoch"`
	TimeScale            float64        `json:"time_scale"`
	DefaultLanguage      string         `json:"default_language"`
	ForceDefaultLanguage bool           `json:"force_default_language"`
	EnvState             map[string]any `json:"env_state"`

	Locations  map[string]*Location  `json:"locations"`
	Characters map[string]*Character `json:"characters"`
	Memories   map[string]*Memory    `json:"memories"`
	Events     map[string]*Event     `json:"events"`
}

type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Connections []string `json:"connections,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type Character struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Age           int                `json:"age"`
	Role          string             `json:"role"`
	Language      string             `json:"language"`
	Comprehension map[string]float64 `json:"comprehension,omitempty"`
	Attributes    Axes               `json:"attributes"`
	Traits        Axes               `json:"traits"`
	States        Axes               `json:"states"`
	Relationships map[string]float64 `json:"relationships"`
	MemoryIDs     []string           `json:"memory_ids"`
	Goals         []string           `json:"goals,omitempty"`
	Flags         map[string]bool    `json:"flags"`
	LocationID    string             `json:"location_id,omitempty"`
}

// Alive treats a missing flag as alive.
func (c *Character) Alive() bool {
	v, ok := c.Flags["alive"]
	return !ok || v
}

type Memory struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Summary   string   `json:"summary"`
	Salience  float64  `json:"salience"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at"`
	DecayRate float64  `json:"decay_rate"`
}

func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type Effect struct {
	Target string   `json:"target"`
	Field  string   `json:"field"`
	Delta  *float64 `json:"delta,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

func Delta(target, field string, d float64) Effect {
	return Effect{Target: target, Field: field, Delta: &d}
}

func Set(target, field string, v float64) Effect {
	return Effect{Target: target, Field: field, Value: &v}
}

// Check reports shape problems only; target existence is checked at apply time.
func (e Effect) Check() error {
	if e.Target == "" {
		return protocol.Errorf(protocol.ErrInvalidArgument, "effect target is empty")
	}
	if (e.Delta == nil) == (e.Value == nil) {
		return protocol.Errorf(protocol.ErrInvalidArgument, "effect %s/%s needs exactly one of delta or value", e.Target, e.Field)
	}
	if _, err := ParseSelector(e.Field); err != nil {
		return err
	}
	return nil
}

type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	CreatedAt    int64          `json:"created_at"`
	ScheduledFor int64          `json:"scheduled_for"`
	LocationID   string         `json:"location_id,omitempty"`
	Actors       []string       `json:"actors,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Origin       Origin         `json:"origin"`
	Status       Status         `json:"status"`
	Effects      []Effect       `json:"effects,omitempty"`
}

// Transition moves a scheduled event into a terminal status.
func (e *Event) Transition(to Status) error {
	if e.Status != StatusScheduled {
		return protocol.Errorf(protocol.ErrInvalidState, "event %s is %s", e.ID, e.Status)
	}
	if to != StatusResolved && to != StatusCancelled {
		return protocol.Errorf(protocol.ErrInvalidState, "event %s cannot move to %s", e.ID, to)
	}
	e.Status = to
	return nil
}

// ValidID reports whether id is usable as a world key, including as a
// directory name: letters, digits, '-', '_' and '.', not starting with '.'.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 || id[0] == '.' {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// New returns an empty world with the default square location.
func New(id, name string) *World {
	w := &World{
		ID:                   id,
		Name:                 name,
		TimeScale:            1.0,
		DefaultLanguage:      DefaultLanguage,
		ForceDefaultLanguage: true,
	}
	w.Normalize()
	w.Locations[DefaultLocationID] = &Location{ID: DefaultLocationID, Name: "Square", Kind: "center"}
	return w
}

// Normalize fills nil maps and defaults, e.g. after decoding an older document.
func (w *World) Normalize() {
	if w.Name == "" {
		w.Name = w.ID
	}
	if w.TimeScale <= 0 {
		w.TimeScale = 1.0
	}
	if w.DefaultLanguage == "" {
		w.DefaultLanguage = DefaultLanguage
	}
	if w.EnvState == nil {
		w.EnvState = map[string]any{}
	}
	if w.Locations == nil {
		w.Locations = map[string]*Location{}
	}
	if w.Characters == nil {
		w.Characters = map[string]*Character{}
	}
	if w.Memories == nil {
		w.Memories = map[string]*Memory{}
	}
	if w.Events == nil {
		w.Events = map[string]*Event{}
	}
	for _, c := range w.Characters {
		NormalizeCharacter(c, w)
	}
}

func NormalizeCharacter(c *Character, w *World) {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Age <= 0 {
		c.Age = DefaultAge
	}
	if c.Role == "" {
		c.Role = DefaultRole
	}
	if c.Language == "" && w != nil {
		c.Language = w.DefaultLanguage
	}
	if c.Attributes == nil {
		c.Attributes = Axes{}
	}
	if c.Traits == nil {
		c.Traits = Axes{}
	}
	if c.States == nil {
		c.States = Axes{}
	}
	if c.Relationships == nil {
		c.Relationships = map[string]float64{}
	}
	if c.Flags == nil {
		c.Flags = map[string]bool{}
	}
	if _, ok := c.Flags["alive"]; !ok {
		c.Flags["alive"] = true
	}
	if c.MemoryIDs == nil {
		c.MemoryIDs = []string{}
	}
}

// HasTag checks env_state for a tag, either in the "tags" list or as a truthy key.
func (w *World) HasTag(tag string) bool {
	if tag == "" {
		return false
	}
	switch tags := w.EnvState["tags"].(type) {
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok && s == tag {
				return true
			}
		}
	case []string:
		for _, s := range tags {
			if s == tag {
				return true
			}
		}
	}
	switch v := w.EnvState[tag].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

func (w *World) CharacterIDs() []string {
	ids := make([]string, 0, len(w.Characters))
	for id := range w.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) LocationIDs() []string {
	ids := make([]string, 0, len(w.Locations))
	for id := range w.Locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CharactersAt returns alive characters at loc, sorted by id.
func (w *World) CharactersAt(loc string) []*Character {
	var out []*Character
	for _, id := range w.CharacterIDs() {
		c := w.Characters[id]
		if c.LocationID == loc && c.Alive() {
			out = append(out, c)
		}
	}
	return out
}

// MemoriesOf returns the owner's memories in memory_ids order, skipping dangling ids.
func (w *World) MemoriesOf(characterID string) []*Memory {
	c := w.Characters[characterID]
	if c == nil {
		return nil
	}
	out := make([]*Memory, 0, len(c.MemoryIDs))
	for _, id := range c.MemoryIDs {
		if m := w.Memories[id]; m != nil {
			out = append(out, m)
		}
	}
	return out
}
