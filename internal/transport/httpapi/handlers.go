package httpapi

import (
	"fmt"
	"net/http"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/sim/scheduler"
	"worldsim.ai/internal/sim/world"
)

func (s *Server) handleWorld(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.rt().Snapshot())
}

func (s *Server) handleTimeScale(rw http.ResponseWriter, r *http.Request) {
	var req protocol.TimeScaleRequest
	if err := decode(r, protocol.SchemaTimeScale, &req); err != nil {
		s.writeError(rw, r, err)
		return
	}
	if err := s.rt().SetTimeScale(r.Context(), req.TimeScale); err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, req)
}

func (s *Server) handleLocations(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.rt().Locations())
}

func (s *Server) handleAddLocation(rw http.ResponseWriter, r *http.Request) {
	var loc world.Location
	if err := decode(r, protocol.SchemaLocation, &loc); err != nil {
		s.writeError(rw, r, err)
		return
	}
	out, err := s.rt().AddLocation(r.Context(), loc)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, out)
}

func (s *Server) handleCharacters(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.rt().Characters())
}

func (s *Server) handleCreateCharacter(rw http.ResponseWriter, r *http.Request) {
	var c world.Character
	if err := decode(r, protocol.SchemaCharacter, &c); err != nil {
		s.writeError(rw, r, err)
		return
	}
	out, err := s.rt().CreateCharacter(r.Context(), c)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, out)
}

func (s *Server) handleCharacter(rw http.ResponseWriter, r *http.Request) {
	c, err := s.rt().Character(r.PathValue("id"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, c)
}

func (s *Server) handleUpdateCharacter(rw http.ResponseWriter, r *http.Request) {
	var p runtime.CharacterPatch
	if err := decode(r, protocol.SchemaCharacter, &p); err != nil {
		s.writeError(rw, r, err)
		return
	}
	c, err := s.rt().UpdateCharacter(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, c)
}

func (s *Server) handleMemories(rw http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	mems, err := s.rt().Memories(r.PathValue("id"), limit)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, mems)
}

func (s *Server) handleSummarize(rw http.ResponseWriter, r *http.Request) {
	var req protocol.SummarizeRequest
	if err := decode(r, protocol.SchemaSummarize, &req); err != nil {
		s.writeError(rw, r, err)
		return
	}
	m, err := s.rt().SummarizeMemories(r.Context(), r.PathValue("id"), req.Limit)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"summary": m})
}

func (s *Server) handleEvents(rw http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	evs, err := s.rt().Events(world.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, evs)
}

type injectResponse struct {
	Event    *world.Event        `json:"event"`
	Warnings []scheduler.Warning `json:"warnings,omitempty"`
}

func (s *Server) handleInjectEvent(rw http.ResponseWriter, r *http.Request) {
	var ev world.Event
	if err := decode(r, protocol.SchemaEvent, &ev); err != nil {
		s.writeError(rw, r, err)
		return
	}
	out, warns, err := s.rt().InjectEvent(r.Context(), ev)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, injectResponse{Event: out, Warnings: warns})
}

func (s *Server) handleCancelEvent(rw http.ResponseWriter, r *http.Request) {
	ev, err := s.rt().CancelEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, ev)
}

func (s *Server) handleStep(rw http.ResponseWriter, r *http.Request) {
	rep, err := s.rt().Step(r.Context())
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, rep)
}

type runningResponse struct {
	Running bool `json:"running"`
}

func (s *Server) handleStart(rw http.ResponseWriter, r *http.Request) {
	if err := s.rt().Start(s.base); err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, runningResponse{Running: s.rt().Running()})
}

func (s *Server) handleStop(rw http.ResponseWriter, r *http.Request) {
	if err := s.rt().Stop(); err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, runningResponse{Running: s.rt().Running()})
}

// handleLogTail takes the count as limit; n is an older alias.
func (s *Server) handleLogTail(rw http.ResponseWriter, r *http.Request) {
	key := "limit"
	if !r.URL.Query().Has(key) {
		key = "n"
	}
	n, err := queryInt(r, key, 0)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	entries, err := s.rt().LogTail(r.Context(), n, narrative.Kind(r.URL.Query().Get("kind")))
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, entries)
}

func (s *Server) handleWorlds(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.mgr.List())
}

func (s *Server) handleCreateWorld(rw http.ResponseWriter, r *http.Request) {
	var req protocol.CreateWorldRequest
	if err := decode(r, protocol.SchemaCreateWorld, &req); err != nil {
		s.writeError(rw, r, err)
		return
	}
	w, err := s.mgr.Create(r.Context(), multiworld.CreateOptions{
		ID:                   req.ID,
		Name:                 req.Name,
		Background:           req.Background,
		DefaultLanguage:      req.DefaultLanguage,
		ForceDefaultLanguage: req.ForceDefaultLanguage,
		TimeScale:            req.TimeScale,
	})
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, protocol.WorldRef{WorldID: w.ID, Name: w.Name})
}

func (s *Server) handleSelectWorld(rw http.ResponseWriter, r *http.Request) {
	var req protocol.SelectWorldRequest
	if err := decode(r, protocol.SchemaSelectWorld, &req); err != nil {
		s.writeError(rw, r, err)
		return
	}
	if err := s.mgr.Select(r.Context(), req.ID); err != nil {
		s.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, s.mgr.List())
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := s.rt().Metrics()
	w := m.WorldID

	// Minimal Prometheus exposition format.
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, w, v)
	}
	counter := func(name, help string, v int64) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %d\n", name, w, v)
	}
	running := 0
	if m.Running {
		running = 1
	}
	gauge("worldsim_epoch", "Current world epoch.", m.Epoch)
	gauge("worldsim_time_scale", "Simulated ticks per tick duration.", m.TimeScale)
	gauge("worldsim_running", "1 when the background loop is running.", running)
	gauge("worldsim_characters", "Characters in the active world.", m.Characters)
	gauge("worldsim_memories", "Memories in the active world.", m.Memories)
	gauge("worldsim_scheduled_events", "Events waiting to resolve.", m.ScheduledEvents)
	gauge("worldsim_log_subscribers", "Live narrative stream subscribers.", m.Log.Subscribers)

	counter("worldsim_ticks_total", "Ticks processed since start.", m.Ticks)
	counter("worldsim_events_resolved_total", "Events resolved.", m.EventsResolved)
	counter("worldsim_fate_fired_total", "Fate rules that fired.", m.FateFired)
	counter("worldsim_warnings_total", "Warnings recorded.", m.Warnings)
	counter("worldsim_dialogues_total", "Dialogue lines generated.", m.Dialogues)
	counter("worldsim_generation_failures_total", "Failed generation calls.", m.GenerationFailures)
	counter("worldsim_persist_failures_total", "Failed world document writes.", m.PersistFailures)
	counter("worldsim_log_appended_total", "Narrative entries appended.", m.Log.Appended)
	counter("worldsim_log_durable_failures_total", "Narrative entries that failed to persist.", m.Log.DurableFailures)
}
