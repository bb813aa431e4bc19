package runtime

import (
	"context"
	"math"
	"strings"

	"worldsim.ai/internal/gen"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/memory"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/scheduler"
	"worldsim.ai/internal/sim/world"
)

const defaultSummarizeLimit = 5

func (r *Runtime) AddLocation(ctx context.Context, loc world.Location) (*world.Location, error) {
	loc.ID = strings.TrimSpace(loc.ID)
	if loc.ID == "" {
		loc.ID = world.NewID("loc")
	}
	if strings.TrimSpace(loc.Name) == "" {
		loc.Name = loc.ID
	}
	var out *world.Location
	err := r.store.Update(func(w *world.World) error {
		if _, ok := w.Locations[loc.ID]; ok {
			return protocol.Errorf(protocol.ErrAlreadyExists, "location %s", loc.ID)
		}
		// Connections may name locations added later.
		l := loc.Clone()
		w.Locations[l.ID] = l
		out = l.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persistBestEffort(ctx)
	return out, nil
}

func (r *Runtime) CreateCharacter(ctx context.Context, c world.Character) (*world.Character, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = world.NewID("c")
	}
	if c.Age < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "age must be >= 0, got %d", c.Age)
	}
	if len(c.MemoryIDs) > 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "memory_ids are assigned by the simulation")
	}
	var out *world.Character
	err := r.store.Update(func(w *world.World) error {
		if _, ok := w.Characters[c.ID]; ok {
			return protocol.Errorf(protocol.ErrAlreadyExists, "character %s", c.ID)
		}
		if c.LocationID != "" {
			if _, ok := w.Locations[c.LocationID]; !ok {
				return protocol.Errorf(protocol.ErrNotFound, "location %s", c.LocationID)
			}
		}
		nc := c.Clone()
		if w.ForceDefaultLanguage {
			nc.Language = w.DefaultLanguage
		}
		world.NormalizeCharacter(nc, w)
		clampAll(nc)
		w.Characters[nc.ID] = nc
		out = nc.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persistBestEffort(ctx)
	return out, nil
}

// CharacterPatch carries the fields to change; nil fields are left alone and
// map fields are merged key by key.
type CharacterPatch struct {
	Name          *string            `json:"name,omitempty"`
	Age           *int               `json:"age,omitempty"`
	Role          *string            `json:"role,omitempty"`
	Language      *string            `json:"language,omitempty"`
	LocationID    *string            `json:"location_id,omitempty"`
	Goals         *[]string          `json:"goals,omitempty"`
	Comprehension map[string]float64 `json:"comprehension,omitempty"`
	Attributes    map[string]float64 `json:"attributes,omitempty"`
	Traits        map[string]float64 `json:"traits,omitempty"`
	States        map[string]float64 `json:"states,omitempty"`
	Relationships map[string]float64 `json:"relationships,omitempty"`
	Flags         map[string]bool    `json:"flags,omitempty"`
}

func (r *Runtime) UpdateCharacter(ctx context.Context, id string, p CharacterPatch) (*world.Character, error) {
	if p.Age != nil && *p.Age < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "age must be >= 0, got %d", *p.Age)
	}
	var out *world.Character
	err := r.store.Update(func(w *world.World) error {
		c := w.Characters[id]
		if c == nil {
			return protocol.Errorf(protocol.ErrNotFound, "character %s", id)
		}
		if p.LocationID != nil && *p.LocationID != "" {
			if _, ok := w.Locations[*p.LocationID]; !ok {
				return protocol.Errorf(protocol.ErrNotFound, "location %s", *p.LocationID)
			}
		}
		if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
			c.Name = *p.Name
		}
		if p.Age != nil {
			c.Age = *p.Age
		}
		if p.Role != nil && *p.Role != "" {
			c.Role = *p.Role
		}
		if p.Language != nil && *p.Language != "" && !w.ForceDefaultLanguage {
			c.Language = *p.Language
		}
		if p.LocationID != nil {
			c.LocationID = *p.LocationID
		}
		if p.Goals != nil {
			c.Goals = append([]string(nil), (*p.Goals)...)
		}
		if c.Comprehension == nil && len(p.Comprehension) > 0 {
			c.Comprehension = map[string]float64{}
		}
		for k, v := range p.Comprehension {
			c.Comprehension[k] = clamp01(v)
		}
		for k, v := range p.Attributes {
			c.Attributes[k] = v
		}
		for k, v := range p.Traits {
			c.Traits[k] = v
		}
		for k, v := range p.States {
			c.States[k] = v
		}
		for k, v := range p.Relationships {
			c.Relationships[k] = v
		}
		for k, v := range p.Flags {
			c.Flags[k] = v
		}
		clampAll(c)
		out = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persistBestEffort(ctx)
	return out, nil
}

// clampAll keeps bounded namespaces inside their ranges after a bulk write.
func clampAll(c *world.Character) {
	for k := range c.States {
		c.States[k] = world.Selector{NS: world.NSState, Key: k}.Clamp(c.States[k])
	}
	for k := range c.Traits {
		c.Traits[k] = world.Selector{NS: world.NSTrait, Key: k}.Clamp(c.Traits[k])
	}
	for k := range c.Relationships {
		c.Relationships[k] = world.Selector{NS: world.NSRel, Key: k}.Clamp(c.Relationships[k])
	}
	for k, v := range c.Comprehension {
		c.Comprehension[k] = clamp01(v)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Characters lists every character sorted by id.
func (r *Runtime) Characters() []*world.Character {
	var out []*world.Character
	r.store.View(func(w *world.World) {
		for _, id := range w.CharacterIDs() {
			out = append(out, w.Characters[id].Clone())
		}
	})
	return out
}

func (r *Runtime) Character(id string) (*world.Character, error) {
	var out *world.Character
	r.store.View(func(w *world.World) {
		if c := w.Characters[id]; c != nil {
			out = c.Clone()
		}
	})
	if out == nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "character %s", id)
	}
	return out, nil
}

// Memories returns the newest limit memories of a character in memory_ids
// order; limit <= 0 returns all.
func (r *Runtime) Memories(id string, limit int) ([]*world.Memory, error) {
	var (
		out   []*world.Memory
		found bool
	)
	r.store.View(func(w *world.World) {
		if w.Characters[id] == nil {
			return
		}
		found = true
		mems := w.MemoriesOf(id)
		if limit > 0 && len(mems) > limit {
			mems = mems[len(mems)-limit:]
		}
		for _, m := range mems {
			out = append(out, m.Clone())
		}
	})
	if !found {
		return nil, protocol.Errorf(protocol.ErrNotFound, "character %s", id)
	}
	return out, nil
}

// SummarizeMemories merges up to limit of a character's least salient
// memories. The generator condenses the texts when available; otherwise
// they are concatenated. A nil memory means there was nothing to merge.
func (r *Runtime) SummarizeMemories(ctx context.Context, id string, limit int) (*world.Memory, error) {
	if limit == 0 {
		limit = defaultSummarizeLimit
	}
	if limit < 2 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "limit must be >= 2, got %d", limit)
	}
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	var (
		req   gen.SummaryRequest
		ids   []string
		found bool
	)
	r.store.View(func(w *world.World) {
		c := w.Characters[id]
		if c == nil {
			return
		}
		found = true
		req = gen.SummaryRequest{CharacterID: c.ID, Name: c.Name, Language: c.Language}
		for _, m := range memory.Candidates(w, id, limit) {
			ids = append(ids, m.ID)
			req.Memories = append(req.Memories, m.Summary)
		}
	})
	if !found {
		return nil, protocol.Errorf(protocol.ErrNotFound, "character %s", id)
	}
	if len(ids) < 2 {
		return nil, nil
	}

	text := memory.Concat(req.Memories)
	gctx, cancel := context.WithTimeout(ctx, r.tun.GenerationTimeout())
	condensed, err := r.gen.Summarize(gctx, req)
	cancel()
	switch {
	case err == nil && strings.TrimSpace(condensed) != "":
		text = strings.TrimSpace(condensed)
	case err != nil && !isUnavailable(err):
		r.genFailures.Add(1)
		r.logger.Printf("summarize %s: generator failed, concatenating: %v", id, err)
	}

	var merged *world.Memory
	err = r.store.Update(func(w *world.World) error {
		m, err := memory.Merge(w, id, ids, text, w.Epoch)
		if err != nil {
			return err
		}
		merged = m.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persistBestEffort(ctx)
	return merged, nil
}

// Events lists events with the given status (all when empty), newest last.
func (r *Runtime) Events(status world.Status, limit int) ([]*world.Event, error) {
	switch status {
	case "", world.StatusScheduled, world.StatusResolved, world.StatusCancelled:
	default:
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "unknown status %q", status)
	}
	var out []*world.Event
	r.store.View(func(w *world.World) {
		for _, ev := range scheduler.List(w, status, limit) {
			out = append(out, ev.Clone())
		}
	})
	return out, nil
}

// InjectEvent admits an externally supplied event. created_at is the current
// epoch; non-fatal problems come back as warnings and are logged. tickMu keeps
// the warnings on the world the event went into.
func (r *Runtime) InjectEvent(ctx context.Context, ev world.Event) (*world.Event, []scheduler.Warning, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	var (
		out   *world.Event
		warns []scheduler.Warning
		epoch int64
	)
	err := r.store.Update(func(w *world.World) error {
		e := ev.Clone()
		e.CreatedAt = w.Epoch
		epoch = w.Epoch
		ws, err := scheduler.Admit(w, e)
		if err != nil {
			return err
		}
		warns = ws
		out = e.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for _, wr := range warns {
		r.warnings.Add(1)
		r.log.Append(ctx, narrative.Warning(epoch, wr.Code, wr.EventID, wr.Message))
	}
	r.persistBestEffort(ctx)
	return out, warns, nil
}

func (r *Runtime) CancelEvent(ctx context.Context, id string) (*world.Event, error) {
	var out *world.Event
	err := r.store.Update(func(w *world.World) error {
		ev, err := scheduler.Cancel(w, id)
		if err != nil {
			return err
		}
		out = ev.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persistBestEffort(ctx)
	return out, nil
}

// Locations lists locations sorted by id.
func (r *Runtime) Locations() []*world.Location {
	var out []*world.Location
	r.store.View(func(w *world.World) {
		for _, id := range w.LocationIDs() {
			out = append(out, w.Locations[id].Clone())
		}
	})
	return out
}
