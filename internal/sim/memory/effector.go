package memory

import (
	"fmt"
	"sort"
	"strings"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/world"
)

const (
	TagSummary = "summary"

	InitialSalience = 1.0
)

// Apply mutates one character field. Failures are W_EFFECT warnings: the
// caller records them and moves on to the next effect.
func Apply(w *world.World, ef world.Effect) error {
	c := w.Characters[ef.Target]
	if c == nil {
		return protocol.Errorf(protocol.WarnEffect, "unknown effect target %q", ef.Target)
	}
	sel, err := world.ParseSelector(ef.Field)
	if err != nil {
		return protocol.Errorf(protocol.WarnEffect, "target %s: %v", ef.Target, err)
	}
	switch {
	case ef.Delta != nil && ef.Value == nil:
		sel.Put(c, sel.Get(c)+*ef.Delta)
	case ef.Value != nil && ef.Delta == nil:
		sel.Put(c, *ef.Value)
	default:
		return protocol.Errorf(protocol.WarnEffect, "target %s field %s: need exactly one of delta or value", ef.Target, ef.Field)
	}
	return nil
}

// Remember creates one memory per known actor of a resolved event.
func Remember(w *world.World, ev *world.Event, epoch int64, decayRate float64) []*world.Memory {
	if decayRate < 0 {
		decayRate = 0
	}
	summary := describe(w, ev)
	seen := map[string]bool{}
	var out []*world.Memory
	for _, actor := range ev.Actors {
		c := w.Characters[actor]
		if c == nil || seen[actor] {
			continue
		}
		seen[actor] = true
		m := &world.Memory{
			ID:        world.NewID("mem"),
			OwnerID:   actor,
			Summary:   summary,
			Salience:  InitialSalience,
			Tags:      []string{"event:" + ev.Type, "origin:" + string(ev.Origin), "ref:" + ev.ID},
			CreatedAt: epoch,
			DecayRate: decayRate,
		}
		w.Memories[m.ID] = m
		c.MemoryIDs = append(c.MemoryIDs, m.ID)
		out = append(out, m)
	}
	return out
}

func describe(w *world.World, ev *world.Event) string {
	for _, k := range []string{"summary", "description"} {
		if s, ok := ev.Payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	names := make([]string, 0, len(ev.Actors))
	for _, id := range ev.Actors {
		if c := w.Characters[id]; c != nil {
			names = append(names, c.Name)
		} else {
			names = append(names, id)
		}
	}
	where := ev.LocationID
	if loc := w.Locations[ev.LocationID]; loc != nil {
		where = loc.Name
	}
	if where == "" {
		return fmt.Sprintf("%s with %s", ev.Type, strings.Join(names, ", "))
	}
	return fmt.Sprintf("%s at %s with %s", ev.Type, where, strings.Join(names, ", "))
}

// Decay lowers every memory's salience by its rate, floored at 0.
func Decay(w *world.World) int {
	n := 0
	for _, m := range w.Memories {
		if m.DecayRate <= 0 || m.Salience <= 0 {
			continue
		}
		m.Salience -= m.DecayRate
		if m.Salience < 0 {
			m.Salience = 0
		}
		n++
	}
	return n
}

// Candidates picks up to limit memories to merge: lowest salience first,
// then oldest, then earliest in memory_ids.
func Candidates(w *world.World, characterID string, limit int) []*world.Memory {
	mems := w.MemoriesOf(characterID)
	pos := make(map[string]int, len(mems))
	for i, m := range mems {
		pos[m.ID] = i
	}
	sorted := append([]*world.Memory(nil), mems...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Salience != b.Salience {
			return a.Salience < b.Salience
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return pos[a.ID] < pos[b.ID]
	})
	if limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

func Concat(summaries []string) string {
	return strings.Join(summaries, "; ")
}

// Merge replaces the given memories of one character with a single summary memory.
func Merge(w *world.World, characterID string, ids []string, summary string, epoch int64) (*world.Memory, error) {
	c := w.Characters[characterID]
	if c == nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "character %s", characterID)
	}
	if len(ids) < 2 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "need at least 2 memories to merge, got %d", len(ids))
	}
	drop := make(map[string]bool, len(ids))
	merged := &world.Memory{
		ID:        world.NewID("mem"),
		OwnerID:   characterID,
		Summary:   summary,
		Tags:      []string{TagSummary},
		CreatedAt: epoch,
	}
	for i, id := range ids {
		m := w.Memories[id]
		if m == nil || m.OwnerID != characterID {
			return nil, protocol.Errorf(protocol.ErrInvalidState, "memory %s no longer belongs to %s", id, characterID)
		}
		drop[id] = true
		if m.Salience > merged.Salience {
			merged.Salience = m.Salience
		}
		if i == 0 || m.DecayRate < merged.DecayRate {
			merged.DecayRate = m.DecayRate
		}
	}

	kept := c.MemoryIDs[:0:0]
	for _, id := range c.MemoryIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	for id := range drop {
		delete(w.Memories, id)
	}
	c.MemoryIDs = append(kept, merged.ID)
	w.Memories[merged.ID] = merged
	return merged, nil
}

// Summarize merges the limit best candidates using condense (Concat when nil).
// Fewer than two memories is a no-op.
func Summarize(w *world.World, characterID string, limit int, epoch int64, condense func([]string) string) (*world.Memory, error) {
	if w.Characters[characterID] == nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "character %s", characterID)
	}
	if limit < 2 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "limit must be >= 2, got %d", limit)
	}
	picked := Candidates(w, characterID, limit)
	if len(picked) < 2 {
		return nil, nil
	}
	if condense == nil {
		condense = Concat
	}
	ids := make([]string, len(picked))
	texts := make([]string, len(picked))
	for i, m := range picked {
		ids[i] = m.ID
		texts[i] = m.Summary
	}
	return Merge(w, characterID, ids, condense(texts), epoch)
}

// AutoSummarize brings every character above threshold back down to threshold.
func AutoSummarize(w *world.World, threshold int, epoch int64) []*world.Memory {
	if threshold < 2 {
		return nil
	}
	var out []*world.Memory
	for _, id := range w.CharacterIDs() {
		n := len(w.MemoriesOf(id))
		if n <= threshold {
			continue
		}
		m, err := Summarize(w, id, n-threshold+1, epoch, nil)
		if err == nil && m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RecentSummaries returns up to n of the newest summary-tagged memory texts.
func RecentSummaries(w *world.World, characterID string, n int) []string {
	mems := w.MemoriesOf(characterID)
	var out []string
	for i := len(mems) - 1; i >= 0 && len(out) < n; i-- {
		if mems[i].HasTag(TagSummary) {
			out = append(out, mems[i].Summary)
		}
	}
	return out
}
