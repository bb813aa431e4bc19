package narrative

import (
	"time"

	"worldsim.ai/internal/sim/world"
)

type Kind string

const (
	KindTick     Kind = "tick"
	KindEvent    Kind = "event"
	KindDialogue Kind = "dialogue"
	KindFate     Kind = "fate"
	KindWarning  Kind = "warning"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTick, KindEvent, KindDialogue, KindFate, KindWarning:
		return true
	}
	return false
}

type Mode string

const (
	ModeDialogue  Mode = "dialogue"
	ModeMonologue Mode = "monologue"
)

// Entry is one narrative log line. Exactly one payload field is set, matching Kind.
type Entry struct {
	Seq     int64     `json:"seq"`
	Kind    Kind      `json:"kind"`
	WorldID string    `json:"world_id"`
	Epoch   int64     `json:"epoch"`
	Time    time.Time `json:"ts"`

	Tick     *TickEntry     `json:"tick,omitempty"`
	Event    *EventEntry    `json:"event,omitempty"`
	Dialogue *DialogueEntry `json:"dialogue,omitempty"`
	Fate     *FateEntry     `json:"fate,omitempty"`
	Warning  *WarningEntry  `json:"warning,omitempty"`
}

type TickEntry struct {
	Epoch     int64   `json:"epoch"`
	TimeScale float64 `json:"time_scale"`
}

type EventEntry struct {
	Event          *world.Event   `json:"event"`
	EffectsApplied int            `json:"effects_applied"`
	Warnings       []WarningEntry `json:"warnings,omitempty"`
	MemoryIDs      []string       `json:"memory_ids,omitempty"`
}

type DialogueEntry struct {
	ActorID       string             `json:"actor_id"`
	Text          string             `json:"text"`
	SourceEventID string             `json:"source_event_id"`
	Mode          Mode               `json:"mode"`
	Nudges        map[string]float64 `json:"nudges,omitempty"`
}

type FateEntry struct {
	RuleID    string   `json:"rule_id"`
	Condition bool     `json:"condition"`
	Roll      float64  `json:"roll"`
	Fired     bool     `json:"fired"`
	EventIDs  []string `json:"event_ids"`
	Error     string   `json:"error,omitempty"`
}

type WarningEntry struct {
	Code    string `json:"code"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message"`
}

func Tick(epoch int64, scale float64) Entry {
	return Entry{Kind: KindTick, Epoch: epoch, Tick: &TickEntry{Epoch: epoch, TimeScale: scale}}
}

func Warning(epoch int64, code, eventID, msg string) Entry {
	return Entry{Kind: KindWarning, Epoch: epoch, Warning: &WarningEntry{Code: code, EventID: eventID, Message: msg}}
}
