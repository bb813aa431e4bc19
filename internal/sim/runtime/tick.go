package runtime

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"worldsim.ai/internal/gen"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/memory"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/scheduler"
	"worldsim.ai/internal/sim/world"
)

const (
	// maxNudge bounds a single generated state suggestion.
	maxNudge = 0.25
	// recallDepth is how many memory texts each participant carries into generation.
	recallDepth = 5
)

// TickReport summarizes one processed tick.
type TickReport struct {
	Epoch      int64    `json:"epoch"`
	Resolved   []string `json:"resolved"`
	FateEvents []string `json:"fate_events"`
	Summarized []string `json:"summarized,omitempty"`
	Warnings   int      `json:"warnings"`
	Dialogues  int      `json:"dialogues"`
}

type dialogueJob struct {
	req gen.ReactionRequest
}

// tick runs the pipeline once. Caller holds tickMu. With persist set the
// final world, dialogue nudges included, is written regardless of cadence.
func (r *Runtime) tick(ctx context.Context, persist bool) TickReport {
	ctx, span := r.tracer.Start(ctx, "sim.tick")
	defer span.End()

	var (
		rep     TickReport
		entries []narrative.Entry
		jobs    []dialogueJob
		snap    *world.World
		scale   float64
	)
	warn := func(epoch int64, w scheduler.Warning) {
		entries = append(entries, narrative.Warning(epoch, w.Code, w.EventID, w.Message))
		rep.Warnings++
	}
	record := func(epoch int64, resolved []scheduler.Resolution, w *world.World) {
		for _, res := range resolved {
			rep.Resolved = append(rep.Resolved, res.Event.ID)
			ee := &narrative.EventEntry{Event: res.Event.Clone(), EffectsApplied: res.Applied}
			for _, wr := range res.Warnings {
				ee.Warnings = append(ee.Warnings, narrative.WarningEntry{Code: wr.Code, EventID: wr.EventID, Message: wr.Message})
			}
			for _, m := range res.Memories {
				ee.MemoryIDs = append(ee.MemoryIDs, m.ID)
			}
			entries = append(entries, narrative.Entry{Kind: narrative.KindEvent, Epoch: epoch, Event: ee})
			for _, wr := range res.Warnings {
				warn(epoch, wr)
			}
			if r.tun.DialogueFor(res.Event.Type) {
				if req, ok := r.reactionRequest(w, res.Event); ok {
					jobs = append(jobs, dialogueJob{req: req})
				}
			}
		}
	}

	_ = r.store.Update(func(w *world.World) error {
		epoch := w.Epoch
		rep.Epoch = epoch
		scale = w.TimeScale

		record(epoch, scheduler.ResolveDue(w, epoch, r.tun.DecayRateFor), w)

		for _, d := range r.fate.Evaluate(w) {
			for _, cand := range d.Candidates {
				warns, err := scheduler.Admit(w, cand)
				if err != nil {
					if d.Error != "" {
						d.Error += "; "
					}
					d.Error += err.Error()
					continue
				}
				d.EventIDs = append(d.EventIDs, cand.ID)
				rep.FateEvents = append(rep.FateEvents, cand.ID)
				for _, wr := range warns {
					warn(epoch, wr)
				}
			}
			if d.Fired {
				r.fateFired.Add(1)
			}
			entries = append(entries, narrative.Entry{Kind: narrative.KindFate, Epoch: epoch, Fate: &narrative.FateEntry{
				RuleID:    d.RuleID,
				Condition: d.Condition,
				Roll:      d.Roll,
				Fired:     d.Fired,
				EventIDs:  d.EventIDs,
				Error:     d.Error,
			}})
		}

		// Fate events scheduled for this epoch resolve in the same tick.
		record(epoch, scheduler.ResolveDue(w, epoch, r.tun.DecayRateFor), w)

		memory.Decay(w)
		for _, m := range memory.AutoSummarize(w, r.tun.MemorySummarizeThreshold, epoch) {
			rep.Summarized = append(rep.Summarized, m.ID)
		}

		w.Epoch++
		if every := r.tun.SnapshotEveryTicks; !persist && every > 0 && w.Epoch%every == 0 {
			snap = w.Clone()
		}
		return nil
	})

	entries = append(entries, narrative.Tick(rep.Epoch, scale))
	for _, e := range entries {
		r.log.Append(ctx, e)
	}
	rep.Dialogues = r.runDialogue(ctx, rep.Epoch, jobs)

	if r.storage != nil && (persist || snap != nil) {
		if snap == nil {
			snap = r.store.Snapshot()
		}
		if err := r.write(ctx, snap); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "snapshot failed")
		}
	}

	r.ticks.Add(1)
	r.eventsResolved.Add(int64(len(rep.Resolved)))
	r.warnings.Add(int64(rep.Warnings))
	span.SetAttributes(
		attribute.Int64("sim.epoch", rep.Epoch),
		attribute.Int("sim.events_resolved", len(rep.Resolved)),
		attribute.Int("sim.fate_events", len(rep.FateEvents)),
		attribute.Int("sim.warnings", rep.Warnings),
	)
	return rep
}

func (r *Runtime) reactionRequest(w *world.World, ev *world.Event) (gen.ReactionRequest, bool) {
	req := gen.ReactionRequest{
		WorldID:              w.ID,
		Background:           w.Background,
		DefaultLanguage:      w.DefaultLanguage,
		ForceDefaultLanguage: w.ForceDefaultLanguage,
		EventID:              ev.ID,
		EventType:            ev.Type,
		Payload:              ev.Clone().Payload,
	}
	if loc := w.Locations[ev.LocationID]; loc != nil {
		req.Location = loc.Name
	}
	seen := map[string]bool{}
	for _, id := range ev.Actors {
		c := w.Characters[id]
		if c == nil || seen[id] || !c.Alive() {
			continue
		}
		seen[id] = true
		cc := c.Clone()
		req.Participants = append(req.Participants, gen.Participant{
			ID:            cc.ID,
			Name:          cc.Name,
			Role:          cc.Role,
			Language:      cc.Language,
			Comprehension: cc.Comprehension,
			Traits:        cc.Traits,
			States:        cc.States,
			Relationships: cc.Relationships,
			Memories:      recall(w, id, recallDepth),
		})
	}
	return req, len(req.Participants) > 0
}

// recall returns condensed history first, then the newest memories.
func recall(w *world.World, id string, n int) []string {
	out := memory.RecentSummaries(w, id, 2)
	mems := w.MemoriesOf(id)
	for i := len(mems) - 1; i >= 0 && len(out) < n; i-- {
		if !mems[i].HasTag(memory.TagSummary) {
			out = append(out, mems[i].Summary)
		}
	}
	return out
}

// runDialogue calls the generator for each job outside the store lock. A
// failure or timeout skips that event's dialogue.
func (r *Runtime) runDialogue(ctx context.Context, epoch int64, jobs []dialogueJob) int {
	n := 0
	for _, job := range jobs {
		gctx, cancel := context.WithTimeout(ctx, r.tun.GenerationTimeout())
		reaction, err := r.gen.React(gctx, job.req)
		cancel()
		if err != nil {
			if isUnavailable(err) {
				continue
			}
			r.genFailures.Add(1)
			r.warnings.Add(1)
			r.log.Append(ctx, narrative.Warning(epoch, protocol.ErrExternal, job.req.EventID, "generation: "+err.Error()))
			continue
		}
		mode := narrative.ModeDialogue
		if len(job.req.Participants) == 1 {
			mode = narrative.ModeMonologue
		}
		allowed := map[string]bool{}
		for _, p := range job.req.Participants {
			allowed[p.ID] = true
		}
		for _, line := range reaction.Lines {
			if !allowed[line.ActorID] || strings.TrimSpace(line.Text) == "" {
				continue
			}
			nudges := r.applyNudges(line.ActorID, line.StateDeltas)
			r.log.Append(ctx, narrative.Entry{Kind: narrative.KindDialogue, Epoch: epoch, Dialogue: &narrative.DialogueEntry{
				ActorID:       line.ActorID,
				Text:          line.Text,
				SourceEventID: job.req.EventID,
				Mode:          mode,
				Nudges:        nudges,
			}})
			r.dialogues.Add(1)
			n++
		}
	}
	return n
}

// applyNudges bounds and applies generated deltas; bare keys mean state:<key>.
// It returns what was actually applied, keyed by full selector.
func (r *Runtime) applyNudges(actorID string, deltas map[string]float64) map[string]float64 {
	if len(deltas) == 0 {
		return nil
	}
	applied := map[string]float64{}
	_ = r.store.Update(func(w *world.World) error {
		for key, d := range deltas {
			field := key
			if !strings.Contains(field, ":") {
				field = string(world.NSState) + ":" + field
			}
			if _, err := world.ParseSelector(field); err != nil {
				continue
			}
			if d > maxNudge {
				d = maxNudge
			} else if d < -maxNudge {
				d = -maxNudge
			}
			if memory.Apply(w, world.Delta(actorID, field, d)) == nil {
				applied[field] = d
			}
		}
		return nil
	})
	if len(applied) == 0 {
		return nil
	}
	return applied
}
