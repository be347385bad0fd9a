// Package config provides configuration loading for plannerd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for plannerd.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	LLM      LLMConfig      `koanf:"llm"`
	Planner  PlannerConfig  `koanf:"planner"`
	Features FeatureFlags   `koanf:"features"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LLMConfig holds settings for the chat-completion backend used by the
// intent classifier and the plan generator.
type LLMConfig struct {
	Enabled bool     `koanf:"enabled"`
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// PlannerConfig holds workflow tuning knobs.
type PlannerConfig struct {
	// MaxMessagesPerUser caps the conversation ledger per user.
	MaxMessagesPerUser int `koanf:"max_messages_per_user"`

	// MaxIterations bounds router-triggered redirections per run.
	MaxIterations int `koanf:"max_iterations"`

	// ReviseTargetConfirmA is the node re-entered when the first
	// confirmation asks for revision.
	ReviseTargetConfirmA string `koanf:"revise_target_confirm_a"`

	// ReviseTargetConfirmB is the node re-entered when the second
	// confirmation asks for revision.
	ReviseTargetConfirmB string `koanf:"revise_target_confirm_b"`

	// TaskDuration is the default scheduling window per generated task.
	TaskDuration Duration `koanf:"task_duration"`
}

// FeatureFlags is a process-wide snapshot of optional behaviors.
// Flags are a pure input: the core never mutates them at runtime.
type FeatureFlags struct {
	Undo                bool `koanf:"undo"`
	ConflictSuggestions bool `koanf:"conflict_suggestions"`
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "plannerd.db"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(30 * time.Second)
	}
	if cfg.Planner.MaxMessagesPerUser == 0 {
		cfg.Planner.MaxMessagesPerUser = 50
	}
	if cfg.Planner.MaxIterations == 0 {
		cfg.Planner.MaxIterations = 5
	}
	if cfg.Planner.ReviseTargetConfirmA == "" {
		cfg.Planner.ReviseTargetConfirmA = "plan_outline"
	}
	if cfg.Planner.ReviseTargetConfirmB == "" {
		cfg.Planner.ReviseTargetConfirmB = "task_generation"
	}
	if cfg.Planner.TaskDuration == 0 {
		cfg.Planner.TaskDuration = Duration(time.Hour)
	}
}

// DefaultFeatureFlags returns the all-enabled flag snapshot used when no
// rollout configuration is present.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		Undo:                true,
		ConflictSuggestions: true,
	}
}

// Default returns a fully-populated default configuration.
func Default() *Config {
	cfg := &Config{Features: DefaultFeatureFlags()}
	applyDefaults(cfg)
	return cfg
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Planner.MaxMessagesPerUser < 1 {
		return fmt.Errorf("planner max_messages_per_user must be positive, got %d", c.Planner.MaxMessagesPerUser)
	}
	if c.Planner.MaxIterations < 1 {
		return fmt.Errorf("planner max_iterations must be positive, got %d", c.Planner.MaxIterations)
	}
	if c.Planner.ReviseTargetConfirmA == "" || c.Planner.ReviseTargetConfirmB == "" {
		return fmt.Errorf("planner revise targets are required")
	}
	if c.LLM.Enabled && c.LLM.Model == "" {
		return fmt.Errorf("llm model is required when llm is enabled")
	}
	return nil
}
