package fate

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/sim/world"
)

// Template is a rule compiled from a sim.yaml rule entry.
type Template struct {
	spec tuning.RuleSpec
	trig Trigger
}

func NewTemplate(spec tuning.RuleSpec) *Template {
	t := &Template{spec: spec}
	for _, k := range spec.Triggers {
		switch k {
		case "tick":
			t.trig.Tick = true
		case "probability":
			t.trig.Probability = true
		case "world_tag":
			t.trig.WorldTag = spec.WorldTag
		}
	}
	if t.trig.WorldTag == "" && spec.WorldTag != "" {
		t.trig.WorldTag = spec.WorldTag
	}
	return t
}

// FromTuning compiles every configured rule in order.
func FromTuning(t tuning.Tuning) []Rule {
	out := make([]Rule, 0, len(t.Rules))
	for _, spec := range t.Rules {
		out = append(out, NewTemplate(spec))
	}
	return out
}

func (t *Template) ID() string       { return t.spec.ID }
func (t *Template) Trigger() Trigger { return t.trig }
func (t *Template) Weight() float64  { return t.spec.Weight }

func (t *Template) Evaluate(w *world.World) bool {
	if t.spec.EveryTicks > 0 && w.Epoch%t.spec.EveryTicks != 0 {
		return false
	}
	switch t.spec.Actors {
	case tuning.ActorsPairAtLocation:
		return len(crowdedLocations(w)) > 0
	case tuning.ActorsSingleAlive:
		return len(aliveCharacters(w)) > 0
	}
	return true
}

func (t *Template) Generate(w *world.World, epoch int64, rng *rand.Rand) ([]world.Event, error) {
	var actors []string
	loc := ""
	switch t.spec.Actors {
	case tuning.ActorsPairAtLocation:
		locs := crowdedLocations(w)
		if len(locs) == 0 {
			return nil, nil
		}
		loc = locs[rng.IntN(len(locs))]
		here := w.CharactersAt(loc)
		i := rng.IntN(len(here))
		j := rng.IntN(len(here) - 1)
		if j >= i {
			j++
		}
		actors = []string{here[i].ID, here[j].ID}
	case tuning.ActorsSingleAlive:
		alive := aliveCharacters(w)
		if len(alive) == 0 {
			return nil, nil
		}
		c := alive[rng.IntN(len(alive))]
		actors = []string{c.ID}
		if _, ok := w.Locations[c.LocationID]; ok {
			loc = c.LocationID
		}
	}

	payload := map[string]any{"rule": t.spec.ID}
	for k, v := range t.spec.Payload {
		payload[k] = v
	}
	ev := world.Event{
		Type:         t.spec.EventType,
		ScheduledFor: epoch + t.spec.DelayTicks,
		LocationID:   loc,
		Actors:       actors,
		Payload:      payload,
	}
	for _, es := range t.spec.Effects {
		ef := world.Effect{
			Target: bind(es.Target, actors),
			Field:  bind(es.Field, actors),
		}
		if es.Delta != nil {
			d := *es.Delta
			ef.Delta = &d
		}
		if es.Value != nil {
			v := *es.Value
			ef.Value = &v
		}
		ev.Effects = append(ev.Effects, ef)
	}
	return []world.Event{ev}, nil
}

// bind replaces $0, $1, ... with picked actor ids.
func bind(s string, actors []string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	for i := len(actors) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, "$"+strconv.Itoa(i), actors[i])
	}
	return s
}

func crowdedLocations(w *world.World) []string {
	var out []string
	for _, id := range w.LocationIDs() {
		if len(w.CharactersAt(id)) >= 2 {
			out = append(out, id)
		}
	}
	return out
}

func aliveCharacters(w *world.World) []*world.Character {
	var out []*world.Character
	for _, id := range w.CharacterIDs() {
		if c := w.Characters[id]; c.Alive() {
			out = append(out, c)
		}
	}
	return out
}
