package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/memory"
	"worldsim.ai/internal/sim/world"
)

// Warning is a non-fatal problem recorded in the narrative log.
type Warning struct {
	Code    string `json:"code"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message"`
}

// Resolution is the outcome of resolving one event.
type Resolution struct {
	Event    *world.Event
	Applied  int
	Warnings []Warning
	Memories []*world.Memory
}

// DecayRateFunc maps an event type to the decay rate of the memories it creates.
type DecayRateFunc func(eventType string) float64

// Admit validates ev and inserts it into the world's queue.
func Admit(w *world.World, ev *world.Event) ([]Warning, error) {
	if ev == nil {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "nil event")
	}
	if ev.Type == "" {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "event type is required")
	}
	if ev.ScheduledFor < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "scheduled_for must be >= 0, got %d", ev.ScheduledFor)
	}
	if ev.CreatedAt < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "created_at must be >= 0, got %d", ev.CreatedAt)
	}
	if ev.Status == "" {
		ev.Status = world.StatusScheduled
	}
	if ev.Status != world.StatusScheduled {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "new events must be scheduled, got %s", ev.Status)
	}
	if ev.Origin == "" {
		ev.Origin = world.OriginManual
	}
	if !ev.Origin.Valid() {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "unknown origin %q", ev.Origin)
	}
	if ev.LocationID != "" {
		if _, ok := w.Locations[ev.LocationID]; !ok {
			return nil, protocol.Errorf(protocol.ErrInvalidArgument, "unknown location %q", ev.LocationID)
		}
	}
	if ev.ID == "" {
		ev.ID = world.NewID("ev")
	}
	if _, ok := w.Events[ev.ID]; ok {
		return nil, protocol.Errorf(protocol.ErrAlreadyExists, "event %s", ev.ID)
	}

	var warns []Warning
	for _, a := range ev.Actors {
		if _, ok := w.Characters[a]; !ok {
			warns = append(warns, Warning{Code: protocol.WarnEffect, EventID: ev.ID, Message: "unknown actor " + a})
		}
	}
	// Malformed effects are kept; resolution skips them.
	for i, ef := range ev.Effects {
		if err := ef.Check(); err != nil {
			warns = append(warns, Warning{Code: protocol.WarnEffect, EventID: ev.ID, Message: effectMsg(i, err)})
		}
	}
	w.Events[ev.ID] = ev
	return warns, nil
}

// Due lists scheduled events with scheduled_for <= epoch in resolution order.
func Due(w *world.World, epoch int64) []*world.Event {
	var due []*world.Event
	for _, ev := range w.Events {
		if ev.Status == world.StatusScheduled && ev.ScheduledFor <= epoch {
			due = append(due, ev)
		}
	}
	SortEvents(due)
	return due
}

// SortEvents orders by scheduled_for, then created_at, then id.
func SortEvents(evs []*world.Event) {
	sort.Slice(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.ScheduledFor != b.ScheduledFor {
			return a.ScheduledFor < b.ScheduledFor
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

// ResolveDue resolves every due event in order. A bad effect is skipped
// with a warning; the rest of the event still applies.
func ResolveDue(w *world.World, epoch int64, decay DecayRateFunc) []Resolution {
	due := Due(w, epoch)
	out := make([]Resolution, 0, len(due))
	for _, ev := range due {
		res, err := resolve(w, ev, epoch, decay)
		if err != nil {
			continue
		}
		out = append(out, res)
	}
	return out
}

// Resolve resolves one event now, regardless of scheduled_for.
func Resolve(w *world.World, id string, epoch int64, decay DecayRateFunc) (Resolution, error) {
	ev := w.Events[id]
	if ev == nil {
		return Resolution{}, protocol.Errorf(protocol.ErrNotFound, "event %s", id)
	}
	return resolve(w, ev, epoch, decay)
}

func resolve(w *world.World, ev *world.Event, epoch int64, decay DecayRateFunc) (Resolution, error) {
	if ev.Status != world.StatusScheduled {
		return Resolution{}, protocol.Errorf(protocol.ErrInvalidState, "event %s is %s", ev.ID, ev.Status)
	}
	res := Resolution{Event: ev}
	for i, ef := range ev.Effects {
		if err := memory.Apply(w, ef); err != nil {
			res.Warnings = append(res.Warnings, Warning{Code: protocol.WarnEffect, EventID: ev.ID, Message: effectMsg(i, err)})
			continue
		}
		res.Applied++
	}
	if err := ev.Transition(world.StatusResolved); err != nil {
		return Resolution{}, err
	}
	rate := 0.0
	if decay != nil {
		rate = decay(ev.Type)
	}
	res.Memories = memory.Remember(w, ev, epoch, rate)
	return res, nil
}

func effectMsg(i int, err error) string {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return fmt.Sprintf("effects[%d]: %s", i, pe.Message)
	}
	return fmt.Sprintf("effects[%d]: %v", i, err)
}

// Cancel moves a scheduled event to cancelled without applying effects.
func Cancel(w *world.World, id string) (*world.Event, error) {
	ev := w.Events[id]
	if ev == nil {
		return nil, protocol.Errorf(protocol.ErrNotFound, "event %s", id)
	}
	if err := ev.Transition(world.StatusCancelled); err != nil {
		return nil, err
	}
	return ev, nil
}

// List returns the last limit events with the given status (any when empty),
// in resolution order.
func List(w *world.World, status world.Status, limit int) []*world.Event {
	var out []*world.Event
	for _, ev := range w.Events {
		if status == "" || ev.Status == status {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
