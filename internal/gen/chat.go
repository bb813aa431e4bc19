package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultSystemPrompt = "Answer in the requested language. Do not output <think> blocks or reasoning, only the final concise result."

type ChatConfig struct {
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Stop         []string
	Timeout      time.Duration
}

// Chat talks to a chat-completions style endpoint.
type Chat struct {
	cfg  ChatConfig
	http *http.Client
}

func NewChat(cfg ChatConfig, hc *http.Client) *Chat {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Stop == nil {
		cfg.Stop = []string{"<think>", "</think>"}
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Chat{cfg: cfg, http: hc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Chat) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		Stop:        c.cfg.Stop,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("chat completions: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("chat completions: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completions: no choices")
	}
	text := StripThink(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completions: empty content")
	}
	return text, nil
}

var thinkRE = regexp.MustCompile(`(?is)<think>.*?</think>`)

func StripThink(s string) string {
	return strings.TrimSpace(thinkRE.ReplaceAllString(s, ""))
}

func (c *Chat) React(ctx context.Context, req ReactionRequest) (Reaction, error) {
	ctxJSON, err := json.Marshal(req)
	if err != nil {
		return Reaction{}, err
	}
	lang := req.DefaultLanguage
	prompt := "Event context (JSON):\n" + string(ctxJSON) + "\n\n" +
		"For each participant give one short line of reaction text" +
		" and small state deltas in [-0.2, 0.2]. Write in " + lang + ".\n" +
		`Reply with JSON only: {"reactions":[{"actor_id":"...","text":"...","state_deltas":{"mood":0.1}}]}`
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return Reaction{}, err
	}
	return ParseReaction(text, req), nil
}

// ParseReaction reads the JSON reply, or attributes plain text to the first participant.
func ParseReaction(text string, req ReactionRequest) Reaction {
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		var r Reaction
		if err := json.Unmarshal([]byte(text[i:j+1]), &r); err == nil && len(r.Lines) > 0 {
			return r
		}
	}
	if len(req.Participants) == 0 {
		return Reaction{}
	}
	return Reaction{Lines: []Line{{ActorID: req.Participants[0].ID, Text: text}}}
}

func (c *Chat) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	var b strings.Builder
	b.WriteString("Condense these memories of ")
	b.WriteString(req.Name)
	b.WriteString(" into one short paragraph")
	if req.Language != "" {
		b.WriteString(" in " + req.Language)
	}
	b.WriteString(":\n")
	for _, m := range req.Memories {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	return c.complete(ctx, b.String())
}
