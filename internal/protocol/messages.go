package protocol

import "encoding/json"

// HELLO (client -> server), optional; narrows the stream to some kinds and
// asks for a replay of recent entries.
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Kinds           []string `json:"kinds,omitempty"`
	Replay          int      `json:"replay,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Epoch           int64  `json:"epoch"`
	Running         bool   `json:"running"`
}

// LOG (server -> client) carries one narrative entry.
type LogMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Entry           json.RawMessage `json:"entry"`
}

// ErrorMsg is both the HTTP error body and the stream's ERROR frame.
type ErrorMsg struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type WorldRef struct {
	WorldID string `json:"world_id"`
	Name    string `json:"name,omitempty"`
	Active  bool   `json:"active"`
}

type WorldList struct {
	ActiveWorldID string     `json:"active_world_id"`
	Worlds        []WorldRef `json:"worlds"`
}

type CreateWorldRequest struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name,omitempty"`
	Background           string  `json:"background,omitempty"`
	DefaultLanguage      string  `json:"default_language,omitempty"`
	ForceDefaultLanguage *bool   `json:"force_default_language,omitempty"`
	TimeScale            float64 `json:"time_scale,omitempty"`
}

type SelectWorldRequest struct {
	ID string `json:"id"`
}

type TimeScaleRequest struct {
	TimeScale float64 `json:"time_scale"`
}

type SummarizeRequest struct {
	Limit int `json:"limit,omitempty"`
}
