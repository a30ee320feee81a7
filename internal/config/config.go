// Package config provides configuration for the simulator.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the optional YAML file overlaid on the defaults.
const EnvConfigFile = "SIMULATOR_CONFIG"

// Config holds the simulator configuration.
type Config struct {
	// Server settings
	HTTPPort int    `yaml:"http_port"`
	RPCAddr  string `yaml:"rpc_addr"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Test catalog
	CatalogPath string `yaml:"catalog_path"`

	// Upstream LLM settings
	OpenAIBaseURL        string        `yaml:"openai_base_url"`
	AnthropicBaseURL     string        `yaml:"anthropic_base_url"`
	DefaultModel         string        `yaml:"default_model"`
	SummaryModel         string        `yaml:"summary_model"`
	DefaultTemperature   float64       `yaml:"default_temperature"`
	DefaultMaxTokens     int           `yaml:"default_max_tokens"`
	SimulatedUserTimeout time.Duration `yaml:"simulated_user_timeout"`
	SummaryTimeout       time.Duration `yaml:"summary_timeout"`
	MockLLM              bool          `yaml:"mock_llm"`

	// Agent gateway
	AgentTimeout time.Duration `yaml:"agent_timeout"`

	// Scheduling
	TurnDelay          time.Duration `yaml:"turn_delay"`
	ParallelChunkSize  int           `yaml:"parallel_chunk_size"`
	StaleSweepInterval time.Duration `yaml:"stale_sweep_interval"`
	StaleGrace         time.Duration `yaml:"stale_grace"`

	// Notifications
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	WebhookPolicy  string        `yaml:"webhook_policy"`
	IngressURL     string        `yaml:"ingress_url"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load loads configuration from environment variables, overlaid by the
// YAML file named in SIMULATOR_CONFIG when set.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		RPCAddr:              getEnv("RPC_ADDR", ""),
		DatabaseURL:          getEnv("DATABASE_URL", "file:simulator.db?cache=shared&mode=rwc"),
		CatalogPath:          getEnv("CATALOG_PATH", "tests.yaml"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		AnthropicBaseURL:     getEnv("ANTHROPIC_BASE_URL", ""),
		DefaultModel:         getEnv("SIMULATED_USER_MODEL", "gpt-4o"),
		SummaryModel:         getEnv("SUMMARY_MODEL", ""),
		DefaultTemperature:   getEnvFloat("SIMULATED_USER_TEMPERATURE", 0.7),
		DefaultMaxTokens:     getEnvInt("SIMULATED_USER_MAX_TOKENS", 1024),
		SimulatedUserTimeout: time.Duration(getEnvInt("SIMULATED_USER_TIMEOUT_MS", 60000)) * time.Millisecond,
		SummaryTimeout:       time.Duration(getEnvInt("SUMMARY_TIMEOUT_MS", 60000)) * time.Millisecond,
		MockLLM:              strings.EqualFold(getEnv("GOGO_MODE", ""), "MOCK"),
		AgentTimeout:         time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 120000)) * time.Millisecond,
		TurnDelay:            time.Duration(getEnvInt("TURN_DELAY_MS", 0)) * time.Millisecond,
		ParallelChunkSize:    getEnvInt("PARALLEL_CHUNK_SIZE", 3),
		StaleSweepInterval:   time.Duration(getEnvInt("STALE_SWEEP_INTERVAL_MS", 30000)) * time.Millisecond,
		StaleGrace:           time.Duration(getEnvInt("STALE_GRACE_MS", 300000)) * time.Millisecond,
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:       time.Duration(getEnvInt("WEBHOOK_TIMEOUT_MS", 10000)) * time.Millisecond,
		WebhookPolicy:        getEnv("WEBHOOK_POLICY_FILE", ""),
		IngressURL:           getEnv("INGRESS_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile applies the non-zero values of a YAML file on top of cfg.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.ParallelChunkSize <= 0 {
		return fmt.Errorf("parallel_chunk_size must be positive, got %d", c.ParallelChunkSize)
	}
	if c.SimulatedUserTimeout <= 0 {
		return fmt.Errorf("simulated_user_timeout must be positive")
	}
	if c.SummaryTimeout <= 0 {
		return fmt.Errorf("summary_timeout must be positive")
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("agent_timeout must be positive")
	}
	if c.StaleSweepInterval <= 0 || c.StaleGrace <= 0 {
		return fmt.Errorf("stale_sweep_interval and stale_grace must be positive")
	}
	if c.TurnDelay < 0 {
		return fmt.Errorf("turn_delay must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
