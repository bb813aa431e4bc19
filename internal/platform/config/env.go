// Package config overlays environment variables onto flag-derived settings.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables. Fields whose
// variable is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Server holds the server binary's settings. Flags fill it first; set
// WORLDSIM_* variables win.
type Server struct {
	Addr      string `env:"WORLDSIM_ADDR"`
	DataDir   string `env:"WORLDSIM_DATA"`
	ConfigDir string `env:"WORLDSIM_CONFIGS"`
	Storage   string `env:"WORLDSIM_STORAGE"`
	DSN       string `env:"WORLDSIM_DSN"`
	Autostart bool   `env:"WORLDSIM_AUTOSTART"`
	EnableMCP bool   `env:"WORLDSIM_ENABLE_MCP"`

	LLMEndpoint    string        `env:"WORLDSIM_LLM_ENDPOINT"`
	LLMModel       string        `env:"WORLDSIM_LLM_MODEL"`
	LLMAPIKey      string        `env:"WORLDSIM_LLM_API_KEY"`
	LLMTemperature float64       `env:"WORLDSIM_LLM_TEMPERATURE"`
	LLMMaxTokens   int           `env:"WORLDSIM_LLM_MAX_TOKENS"`
	LLMStop        []string      `env:"WORLDSIM_LLM_STOP" envSeparator:","`
	LLMTimeout     time.Duration `env:"WORLDSIM_LLM_TIMEOUT"`
}
