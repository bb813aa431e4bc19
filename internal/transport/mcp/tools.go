// Package mcp exposes simulation operations as Model Context Protocol tools.
package mcp

import (
	"context"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/sim/scheduler"
	"worldsim.ai/internal/sim/world"
)

const (
	serverName    = "worldsim"
	serverVersion = "1.0.0"
)

// NewServer registers every tool against the manager's active runtime.
func NewServer(mgr *multiworld.Manager) *sdk.Server {
	s := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	t := tools{mgr: mgr}

	sdk.AddTool(s, &sdk.Tool{Name: "world_snapshot", Description: "Returns the active world document"}, t.snapshot)
	sdk.AddTool(s, &sdk.Tool{Name: "list_characters", Description: "Lists characters of the active world"}, t.characters)
	sdk.AddTool(s, &sdk.Tool{Name: "create_character", Description: "Adds a character to the active world"}, t.createCharacter)
	sdk.AddTool(s, &sdk.Tool{Name: "inject_event", Description: "Schedules an event in the active world"}, t.injectEvent)
	sdk.AddTool(s, &sdk.Tool{Name: "step", Description: "Runs exactly one tick"}, t.step)
	sdk.AddTool(s, &sdk.Tool{Name: "set_time_scale", Description: "Changes how many ticks run per tick duration"}, t.setTimeScale)
	sdk.AddTool(s, &sdk.Tool{Name: "log_tail", Description: "Returns the newest narrative log entries"}, t.logTail)
	sdk.AddTool(s, &sdk.Tool{Name: "list_worlds", Description: "Lists persisted worlds and the active one"}, t.listWorlds)
	sdk.AddTool(s, &sdk.Tool{Name: "select_world", Description: "Persists the active world and activates another"}, t.selectWorld)
	return s
}

// Handler serves the tools over streamable HTTP.
func Handler(mgr *multiworld.Manager) http.Handler {
	s := NewServer(mgr)
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server { return s }, nil)
}

type tools struct {
	mgr *multiworld.Manager
}

func (t tools) rt() *runtime.Runtime { return t.mgr.Runtime() }

type Empty struct{}

type WorldResult struct {
	World *world.World `json:"world"`
}

type CharactersResult struct {
	Characters []*world.Character `json:"characters"`
}

type CharacterInput struct {
	ID         string             `json:"id,omitempty" jsonschema:"character id; generated when empty"`
	Name       string             `json:"name,omitempty"`
	Age        int                `json:"age,omitempty"`
	Role       string             `json:"role,omitempty"`
	Language   string             `json:"language,omitempty"`
	LocationID string             `json:"location_id,omitempty"`
	Goals      []string           `json:"goals,omitempty"`
	Traits     map[string]float64 `json:"traits,omitempty" jsonschema:"trait values in [0,1]"`
	States     map[string]float64 `json:"states,omitempty" jsonschema:"state values in [0,1]"`
}

type CharacterResult struct {
	Character *world.Character `json:"character"`
}

type EventInput struct {
	ID           string         `json:"id,omitempty"`
	Type         string         `json:"type" jsonschema:"event type, e.g. greet"`
	ScheduledFor int64          `json:"scheduled_for,omitempty" jsonschema:"epoch at which the event resolves"`
	LocationID   string         `json:"location_id,omitempty"`
	Actors       []string       `json:"actors,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Effects      []world.Effect `json:"effects,omitempty"`
}

type EventResult struct {
	Event    *world.Event        `json:"event"`
	Warnings []scheduler.Warning `json:"warnings,omitempty"`
}

type TimeScaleInput struct {
	TimeScale float64 `json:"time_scale" jsonschema:"must be > 0"`
}

type TailInput struct {
	N    int    `json:"n,omitempty" jsonschema:"number of entries, default 50"`
	Kind string `json:"kind,omitempty" jsonschema:"tick, event, dialogue, fate or warning"`
}

// TailResult carries []narrative.Entry untyped: entry timestamps encode as
// strings, which an inferred object schema would reject.
type TailResult struct {
	Entries any `json:"entries"`
}

type SelectInput struct {
	ID string `json:"id"`
}

func (t tools) snapshot(ctx context.Context, _ *sdk.CallToolRequest, _ Empty) (*sdk.CallToolResult, WorldResult, error) {
	return nil, WorldResult{World: t.rt().Snapshot()}, nil
}

func (t tools) characters(ctx context.Context, _ *sdk.CallToolRequest, _ Empty) (*sdk.CallToolResult, CharactersResult, error) {
	return nil, CharactersResult{Characters: t.rt().Characters()}, nil
}

func (t tools) createCharacter(ctx context.Context, _ *sdk.CallToolRequest, in CharacterInput) (*sdk.CallToolResult, CharacterResult, error) {
	c, err := t.rt().CreateCharacter(ctx, world.Character{
		ID:         in.ID,
		Name:       in.Name,
		Age:        in.Age,
		Role:       in.Role,
		Language:   in.Language,
		LocationID: in.LocationID,
		Goals:      in.Goals,
		Traits:     in.Traits,
		States:     in.States,
	})
	if err != nil {
		return nil, CharacterResult{}, err
	}
	return nil, CharacterResult{Character: c}, nil
}

func (t tools) injectEvent(ctx context.Context, _ *sdk.CallToolRequest, in EventInput) (*sdk.CallToolResult, EventResult, error) {
	ev, warns, err := t.rt().InjectEvent(ctx, world.Event{
		ID:           in.ID,
		Type:         in.Type,
		ScheduledFor: in.ScheduledFor,
		LocationID:   in.LocationID,
		Actors:       in.Actors,
		Payload:      in.Payload,
		Effects:      in.Effects,
	})
	if err != nil {
		return nil, EventResult{}, err
	}
	return nil, EventResult{Event: ev, Warnings: warns}, nil
}

func (t tools) step(ctx context.Context, _ *sdk.CallToolRequest, _ Empty) (*sdk.CallToolResult, runtime.TickReport, error) {
	rep, err := t.rt().Step(ctx)
	return nil, rep, err
}

func (t tools) setTimeScale(ctx context.Context, _ *sdk.CallToolRequest, in TimeScaleInput) (*sdk.CallToolResult, TimeScaleInput, error) {
	if err := t.rt().SetTimeScale(ctx, in.TimeScale); err != nil {
		return nil, TimeScaleInput{}, err
	}
	return nil, in, nil
}

func (t tools) logTail(ctx context.Context, _ *sdk.CallToolRequest, in TailInput) (*sdk.CallToolResult, TailResult, error) {
	entries, err := t.rt().LogTail(ctx, in.N, narrative.Kind(in.Kind))
	if err != nil {
		return nil, TailResult{}, err
	}
	return nil, TailResult{Entries: entries}, nil
}

func (t tools) listWorlds(ctx context.Context, _ *sdk.CallToolRequest, _ Empty) (*sdk.CallToolResult, protocol.WorldList, error) {
	return nil, t.mgr.List(), nil
}

func (t tools) selectWorld(ctx context.Context, _ *sdk.CallToolRequest, in SelectInput) (*sdk.CallToolResult, protocol.WorldList, error) {
	if err := t.mgr.Select(ctx, in.ID); err != nil {
		return nil, protocol.WorldList{}, err
	}
	return nil, t.mgr.List(), nil
}
