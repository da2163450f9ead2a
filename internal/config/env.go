// Package config defines environment configuration structs and loaders.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	OpenRouterEnvConfig
	CouncilEnvConfig
	ThinkingEnvConfig
	TimeoutEnvConfig
	ServerEnvConfig
	StoreEnvConfig
	RedisEnvConfig
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
}

// LoadConfig parses the environment and, when COUNCIL_CONFIG_FILE is set,
// overlays the council file on top of it.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.CouncilFile != "" {
		if err := LoadCouncilFile(cfg.CouncilFile, cfg); err != nil {
			return nil, fmt.Errorf("council file %s: %w", cfg.CouncilFile, err)
		}
	}

	if len(cfg.CouncilModels) == 0 {
		return nil, fmt.Errorf("at least one council model is required")
	}
	if cfg.ChairmanModel == "" {
		return nil, fmt.Errorf("chairman model is required")
	}
	return cfg, nil
}

// OpenRouterEnvConfig holds the model gateway target and credentials.
type OpenRouterEnvConfig struct {
	OpenRouterAPIKey string   `env:"OPENROUTER_API_KEY"`
	OpenRouterAPIURL string   `env:"OPENROUTER_API_URL" envDefault:"https://openrouter.ai/api/v1/chat/completions"`
	ReasoningModels  []string `env:"REASONING_MODELS" envSeparator:"," envDefault:"openai/gpt-5.1,google/gemini-3-pro-preview,anthropic/claude-opus-4.5,google/gemini-2.5-pro,google/gemini-2.5-flash-preview,deepseek/deepseek-r1"`
}

// CouncilEnvConfig lists the council members and the chairman.
type CouncilEnvConfig struct {
	CouncilModels []string `env:"COUNCIL_MODELS" envSeparator:"," envDefault:"openai/gpt-5.1,google/gemini-3-pro-preview,anthropic/claude-opus-4.5,x-ai/grok-4"`
	ChairmanModel string   `env:"CHAIRMAN_MODEL" envDefault:"google/gemini-3-pro-preview"`
	TitleModel    string   `env:"TITLE_MODEL" envDefault:"google/gemini-2.5-flash"`
	CouncilFile   string   `env:"COUNCIL_CONFIG_FILE"`
}

// ThinkingEnvConfig toggles extended reasoning per stage.
type ThinkingEnvConfig struct {
	ThinkingEnabled bool `env:"THINKING_ENABLED" envDefault:"true"`
	ThinkingStage1  bool `env:"THINKING_STAGE1" envDefault:"false"`
	ThinkingStage2  bool `env:"THINKING_STAGE2" envDefault:"true"`
	ThinkingStage3  bool `env:"THINKING_STAGE3" envDefault:"true"`
}

// ForStage reports whether reasoning is requested for stage 1, 2 or 3.
func (t ThinkingEnvConfig) ForStage(stage int) bool {
	if !t.ThinkingEnabled {
		return false
	}
	switch stage {
	case 1:
		return t.ThinkingStage1
	case 2:
		return t.ThinkingStage2
	case 3:
		return t.ThinkingStage3
	}
	return false
}

// TimeoutEnvConfig bounds every model call.
type TimeoutEnvConfig struct {
	BatchTimeout             time.Duration `env:"BATCH_TIMEOUT" envDefault:"120s"`
	BatchReasoningTimeout    time.Duration `env:"BATCH_REASONING_TIMEOUT" envDefault:"300s"`
	ChairmanTimeout          time.Duration `env:"CHAIRMAN_TIMEOUT" envDefault:"180s"`
	ChairmanReasoningTimeout time.Duration `env:"CHAIRMAN_REASONING_TIMEOUT" envDefault:"300s"`
	TitleTimeout             time.Duration `env:"TITLE_TIMEOUT" envDefault:"30s"`
	DirectTimeout            time.Duration `env:"DIRECT_TIMEOUT" envDefault:"120s"`
}

// Batch returns the per-call timeout of a fan-out batch.
func (t TimeoutEnvConfig) Batch(reasoning bool) time.Duration {
	if reasoning {
		return t.BatchReasoningTimeout
	}
	return t.BatchTimeout
}

// Chairman returns the timeout of a single chairman call.
func (t TimeoutEnvConfig) Chairman(reasoning bool) time.Duration {
	if reasoning {
		return t.ChairmanReasoningTimeout
	}
	return t.ChairmanTimeout
}

// ServerEnvConfig configures the HTTP API.
type ServerEnvConfig struct {
	Host          string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port          int    `env:"SERVER_PORT" envDefault:"8001"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT" envDefault:"4194304"`
	CORSOrigins   string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000"`
}

// StoreEnvConfig selects the conversation store backend.
type StoreEnvConfig struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/council.db"`
}

// RedisEnvConfig configures Redis connection.
type RedisEnvConfig struct {
	RedisHost      string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisUsername  string `env:"REDIS_USERNAME"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"council"`
}

// DefaultTimeouts mirrors the envDefault values for callers that build
// configs by hand, mostly tests.
func DefaultTimeouts() TimeoutEnvConfig {
	return TimeoutEnvConfig{
		BatchTimeout:             120 * time.Second,
		BatchReasoningTimeout:    300 * time.Second,
		ChairmanTimeout:          180 * time.Second,
		ChairmanReasoningTimeout: 300 * time.Second,
		TitleTimeout:             30 * time.Second,
		DirectTimeout:            120 * time.Second,
	}
}

// IsProd reports whether ENVIRONMENT selects production behaviour.
func (c *AppConfig) IsProd() bool {
	return strings.EqualFold(c.Environment, "prod")
}
