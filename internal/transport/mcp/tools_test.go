package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/sim/tuning"
)

func connect(t *testing.T) (*sdk.ClientSession, *multiworld.Manager) {
	t.Helper()
	ctx := context.Background()
	cfg := multiworld.Config{DefaultWorldID: "w1", Worlds: []multiworld.WorldSpec{{ID: "w1"}, {ID: "w2"}}}
	mgr, err := multiworld.Open(ctx, cfg, multiworld.Options{Tuning: tuning.Defaults(), Storage: storage.NewMemory()})
	if err != nil {
		t.Fatal(err)
	}
	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	ss, err := NewServer(mgr).Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := sdk.NewClient(&sdk.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Close()
		_ = mgr.Close(ctx)
	})
	return cs, mgr
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any, out any) *sdk.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s: decode %s: %v", name, raw, err)
		}
	}
	return res
}

func TestTools_GreetFlow(t *testing.T) {
	cs, mgr := connect(t)

	for _, id := range []string{"a", "b"} {
		if res := call(t, cs, "create_character", map[string]any{"id": id, "location_id": "loc-1"}, nil); res.IsError {
			t.Fatalf("create %s failed: %+v", id, res.Content)
		}
	}
	var ev EventResult
	res := call(t, cs, "inject_event", map[string]any{
		"id":      "g1",
		"type":    "greet",
		"actors":  []string{"a", "b"},
		"effects": []map[string]any{{"target": "a", "field": "rel:b", "delta": 0.2}},
	}, &ev)
	if res.IsError || ev.Event == nil || ev.Event.ID != "g1" {
		t.Fatalf("inject: %+v", res.Content)
	}
	var rep runtime.TickReport
	call(t, cs, "step", nil, &rep)
	if len(rep.Resolved) != 1 {
		t.Fatalf("step: %+v", rep)
	}
	c, err := mgr.Runtime().Character("a")
	if err != nil || c.Relationships["b"] < 0.199 {
		t.Fatalf("a after greet: %+v %v", c, err)
	}

	var tail struct {
		Entries []json.RawMessage `json:"entries"`
	}
	call(t, cs, "log_tail", map[string]any{"n": 5, "kind": "event"}, &tail)
	if len(tail.Entries) != 1 {
		t.Fatalf("tail: %d entries", len(tail.Entries))
	}
}

func TestTools_Errors(t *testing.T) {
	cs, _ := connect(t)
	if res := call(t, cs, "set_time_scale", map[string]any{"time_scale": 0}, nil); !res.IsError {
		t.Fatalf("zero time scale should fail")
	}
	if res := call(t, cs, "select_world", map[string]any{"id": "nope"}, nil); !res.IsError {
		t.Fatalf("unknown world should fail")
	}
	var list protocol.WorldList
	if res := call(t, cs, "select_world", map[string]any{"id": "w2"}, &list); res.IsError || list.ActiveWorldID != "w2" {
		t.Fatalf("select w2: %+v", list)
	}
}
