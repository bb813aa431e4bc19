package world

func (w *World) Clone() *World {
	if w == nil {
		return nil
	}
	out := *w
	out.EnvState = cloneMap(w.EnvState)
	out.Locations = make(map[string]*Location, len(w.Locations))
	for id, l := range w.Locations {
		out.Locations[id] = l.Clone()
	}
	out.Characters = make(map[string]*Character, len(w.Characters))
	for id, c := range w.Characters {
		out.Characters[id] = c.Clone()
	}
	out.Memories = make(map[string]*Memory, len(w.Memories))
	for id, m := range w.Memories {
		out.Memories[id] = m.Clone()
	}
	out.Events = make(map[string]*Event, len(w.Events))
	for id, e := range w.Events {
		out.Events[id] = e.Clone()
	}
	return &out
}

func (l *Location) Clone() *Location {
	out := *l
	out.Connections = cloneStrings(l.Connections)
	out.Tags = cloneStrings(l.Tags)
	return &out
}

func (c *Character) Clone() *Character {
	out := *c
	out.Comprehension = cloneFloats(c.Comprehension)
	out.Attributes = Axes(cloneFloats(c.Attributes))
	out.Traits = Axes(cloneFloats(c.Traits))
	out.States = Axes(cloneFloats(c.States))
	out.Relationships = cloneFloats(c.Relationships)
	out.MemoryIDs = cloneStrings(c.MemoryIDs)
	out.Goals = cloneStrings(c.Goals)
	if c.Flags != nil {
		out.Flags = make(map[string]bool, len(c.Flags))
		for k, v := range c.Flags {
			out.Flags[k] = v
		}
	}
	return &out
}

func (m *Memory) Clone() *Memory {
	out := *m
	out.Tags = cloneStrings(m.Tags)
	return &out
}

func (e *Event) Clone() *Event {
	out := *e
	out.Actors = cloneStrings(e.Actors)
	out.Payload = cloneMap(e.Payload)
	if e.Effects != nil {
		out.Effects = make([]Effect, len(e.Effects))
		for i, ef := range e.Effects {
			out.Effects[i] = ef.Clone()
		}
	}
	return &out
}

func (e Effect) Clone() Effect {
	if e.Delta != nil {
		d := *e.Delta
		e.Delta = &d
	}
	if e.Value != nil {
		v := *e.Value
		e.Value = &v
	}
	return e
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneFloats[M ~map[string]float64](in M) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneAny(t[i])
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}
