// Package config loads and validates the engine's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// ProviderConfig defines how to launch a mapper agent provider process.
type ProviderConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath               string                    `json:"db_path"`
	DatasetsDir          string                    `json:"datasets_dir"`
	DocumentsDir         string                    `json:"documents_dir"`
	OutputDir            string                    `json:"output_dir"`
	ListenAddr           string                    `json:"listen_addr"`
	LogPath              string                    `json:"log_path"`
	Debug                bool                      `json:"debug"`
	DefaultMaxIterations int                       `json:"default_max_iterations"`
	Providers            map[string]ProviderConfig `json:"providers"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9732"
	}
	if c.DefaultMaxIterations == 0 {
		c.DefaultMaxIterations = 3
	}
	if c.LogPath == "" {
		c.LogPath = "oraclemcp.log"
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.DatasetsDir == "" {
		problems = append(problems, "datasets_dir is required")
	}
	if c.DocumentsDir == "" {
		problems = append(problems, "documents_dir is required")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output_dir is required")
	}
	if c.DefaultMaxIterations < 1 || c.DefaultMaxIterations > domain.MaxIterationsCap {
		problems = append(problems, fmt.Sprintf("default_max_iterations must be between 1 and %d", domain.MaxIterationsCap))
	}
	if len(c.Providers) == 0 {
		problems = append(problems, "at least one provider is required")
	}
	for name, p := range c.Providers {
		if p.Command == "" {
			problems = append(problems, fmt.Sprintf("provider %q has no command", name))
		}
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
