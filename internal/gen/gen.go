// Package gen is the boundary to an external text generator. The sim core
// only hands it structured context and consumes structured output.
package gen

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("gen: generator unavailable")

type Participant struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Role          string             `json:"role,omitempty"`
	Language      string             `json:"language,omitempty"`
	Comprehension map[string]float64 `json:"comprehension,omitempty"`
	Traits        map[string]float64 `json:"traits,omitempty"`
	States        map[string]float64 `json:"states,omitempty"`
	Relationships map[string]float64 `json:"relationships,omitempty"`
	Memories      []string           `json:"memory_summaries,omitempty"`
}

type ReactionRequest struct {
	WorldID              string         `json:"world_id"`
	Background           string         `json:"background,omitempty"`
	DefaultLanguage      string         `json:"world_default_language"`
	ForceDefaultLanguage bool           `json:"force_default_language"`
	Location             string         `json:"location,omitempty"`
	EventID              string         `json:"event_id"`
	EventType            string         `json:"type"`
	Payload              map[string]any `json:"payload,omitempty"`
	Participants         []Participant  `json:"participants"`
}

// Line is one participant's reaction. StateDeltas keys are either bare
// state names or full selectors such as "rel:c2".
type Line struct {
	ActorID     string             `json:"actor_id"`
	Text        string             `json:"text"`
	StateDeltas map[string]float64 `json:"state_deltas,omitempty"`
}

type Reaction struct {
	Lines []Line `json:"reactions"`
}

type SummaryRequest struct {
	CharacterID string   `json:"character_id"`
	Name        string   `json:"name"`
	Language    string   `json:"language,omitempty"`
	Memories    []string `json:"memories"`
}

type Generator interface {
	React(ctx context.Context, req ReactionRequest) (Reaction, error)
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// Nop is used when no endpoint is configured.
type Nop struct{}

func (Nop) React(context.Context, ReactionRequest) (Reaction, error) {
	return Reaction{}, ErrUnavailable
}

func (Nop) Summarize(context.Context, SummaryRequest) (string, error) {
	return "", ErrUnavailable
}

// Funcs adapts plain functions; nil functions behave like Nop.
type Funcs struct {
	ReactFunc     func(ctx context.Context, req ReactionRequest) (Reaction, error)
	SummarizeFunc func(ctx context.Context, req SummaryRequest) (string, error)
}

func (f Funcs) React(ctx context.Context, req ReactionRequest) (Reaction, error) {
	if f.ReactFunc == nil {
		return Reaction{}, ErrUnavailable
	}
	return f.ReactFunc(ctx, req)
}

func (f Funcs) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	if f.SummarizeFunc == nil {
		return "", ErrUnavailable
	}
	return f.SummarizeFunc(ctx, req)
}
