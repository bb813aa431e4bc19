package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/sim/world"
)

func newTestServer(t *testing.T) (*httptest.Server, *multiworld.Manager) {
	t.Helper()
	cfg := multiworld.Config{
		DefaultWorldID: "w1",
		Worlds:         []multiworld.WorldSpec{{ID: "w1"}, {ID: "w2", TimeScale: 3}},
	}
	mgr, err := multiworld.Open(context.Background(), cfg, multiworld.Options{Tuning: tuning.Defaults(), Storage: storage.NewMemory()})
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	srv := httptest.NewServer(New(mgr, Options{}).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close(context.Background())
	})
	return srv, mgr
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode
}

func TestGreetScenarioOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, c := range []string{
		`{"id":"a","name":"Ann","location_id":"loc-1"}`,
		`{"id":"b","name":"Bo","location_id":"loc-1"}`,
	} {
		if code := do(t, srv, http.MethodPost, "/v1/characters", c, nil); code != http.StatusCreated {
			t.Fatalf("create character: %d", code)
		}
	}
	var inj struct {
		Event    world.Event `json:"event"`
		Warnings []any       `json:"warnings"`
	}
	body := `{"id":"g1","type":"greet","scheduled_for":0,"actors":["a","b"],"effects":[{"target":"a","field":"rel:b","delta":0.2},{"target":"b","field":"rel:a","delta":0.2}]}`
	if code := do(t, srv, http.MethodPost, "/v1/events", body, &inj); code != http.StatusCreated {
		t.Fatalf("inject: %d", code)
	}
	if inj.Event.Status != world.StatusScheduled || len(inj.Warnings) != 0 {
		t.Fatalf("injected: %+v", inj)
	}

	var rep runtime.TickReport
	if code := do(t, srv, http.MethodPost, "/v1/simulate/step", "", &rep); code != http.StatusOK {
		t.Fatalf("step: %d", code)
	}
	if len(rep.Resolved) != 1 || rep.Resolved[0] != "g1" {
		t.Fatalf("report: %+v", rep)
	}

	var a world.Character
	do(t, srv, http.MethodGet, "/v1/characters/a", "", &a)
	if a.Relationships["b"] < 0.199 || len(a.MemoryIDs) != 1 {
		t.Fatalf("a after greet: %+v", a)
	}

	var entries []narrative.Entry
	if code := do(t, srv, http.MethodGet, "/v1/logs/tail?n=10&kind=event", "", &entries); code != http.StatusOK {
		t.Fatalf("tail: %d", code)
	}
	if len(entries) != 1 || entries[0].Event.Event.ID != "g1" {
		t.Fatalf("event entries: %+v", entries)
	}
	var ticks []narrative.Entry
	if code := do(t, srv, http.MethodGet, "/v1/logs/tail?limit=1&kind=tick", "", &ticks); code != http.StatusOK {
		t.Fatalf("tail by limit: %d", code)
	}
	if len(ticks) != 1 || ticks[0].Kind != narrative.KindTick {
		t.Fatalf("tail by limit: %+v", ticks)
	}

	var evs []world.Event
	do(t, srv, http.MethodGet, "/v1/events?status=resolved", "", &evs)
	if len(evs) != 1 {
		t.Fatalf("resolved events: %+v", evs)
	}
	var em protocol.ErrorMsg
	if code := do(t, srv, http.MethodPost, "/v1/events/g1/cancel", "", &em); code != http.StatusConflict || em.Code != protocol.ErrInvalidState {
		t.Fatalf("cancel resolved: %d %+v", code, em)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{http.MethodPost, "/v1/world/time-scale", `{"time_scale":-1}`, http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodPost, "/v1/world/time-scale", `{"time_scale":"x"}`, http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/characters/ghost", "", http.StatusNotFound, protocol.ErrNotFound},
		{http.MethodPatch, "/v1/characters/ghost", `{"age":3}`, http.StatusNotFound, protocol.ErrNotFound},
		{http.MethodPost, "/v1/characters", `{"id":"x","location_id":"nowhere"}`, http.StatusNotFound, protocol.ErrNotFound},
		{http.MethodPost, "/v1/events", `{"type":"greet","location_id":"nowhere"}`, http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/events?status=lost", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/logs/tail?n=-1", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/logs/tail?limit=-1", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/logs/tail?limit=ten", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/logs/tail?kind=gossip", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodGet, "/v1/characters/a/memories?limit=many", "", http.StatusBadRequest, protocol.ErrInvalidArgument},
		{http.MethodPost, "/v1/worlds/select", `{"id":"missing"}`, http.StatusNotFound, protocol.ErrNotFound},
		{http.MethodPost, "/v1/worlds", `{"id":"w1"}`, http.StatusConflict, protocol.ErrAlreadyExists},
		{http.MethodPost, "/v1/worlds", `{"id":"bad/id"}`, http.StatusBadRequest, protocol.ErrInvalidArgument},
	}
	for _, tc := range cases {
		var em protocol.ErrorMsg
		code := do(t, srv, tc.method, tc.path, tc.body, &em)
		if code != tc.status || em.Code != tc.code {
			t.Fatalf("%s %s: got %d %+v, want %d %s", tc.method, tc.path, code, em, tc.status, tc.code)
		}
	}
}

func TestWorldsAndLoop(t *testing.T) {
	srv, mgr := newTestServer(t)

	var ref protocol.WorldRef
	if code := do(t, srv, http.MethodPost, "/v1/worlds", `{"id":"w3","name":"Third"}`, &ref); code != http.StatusCreated || ref.WorldID != "w3" {
		t.Fatalf("create world: %d %+v", code, ref)
	}
	var list protocol.WorldList
	if code := do(t, srv, http.MethodPost, "/v1/worlds/select", `{"id":"w2"}`, &list); code != http.StatusOK {
		t.Fatalf("select: %d", code)
	}
	if list.ActiveWorldID != "w2" || len(list.Worlds) != 3 {
		t.Fatalf("list after select: %+v", list)
	}
	var w world.World
	do(t, srv, http.MethodGet, "/v1/world", "", &w)
	if w.ID != "w2" || w.TimeScale != 3 {
		t.Fatalf("world: %+v", w)
	}

	var running struct {
		Running bool `json:"running"`
	}
	do(t, srv, http.MethodPost, "/v1/simulate/start", "", &running)
	if !running.Running || !mgr.Runtime().Running() {
		t.Fatalf("start: %+v", running)
	}
	do(t, srv, http.MethodPost, "/v1/simulate/start", "", &running)
	do(t, srv, http.MethodPost, "/v1/simulate/stop", "", &running)
	if running.Running {
		t.Fatalf("stop: %+v", running)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	srv, mgr := newTestServer(t)
	if _, err := mgr.Runtime().Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`worldsim_epoch{world="w1"} 1`,
		`worldsim_ticks_total{world="w1"} 1`,
		"# TYPE worldsim_persist_failures_total counter",
	} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("metrics missing %q:\n%s", want, raw)
		}
	}
	if code := do(t, srv, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
}
