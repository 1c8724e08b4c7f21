// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.zapagent/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Storage: PostgreSQL connection for history and knowledge (see storage.go)
//   - Engine: run timeout, tool-loop bound, history window, retrieval depth
//   - Router: command matching options
//   - Supervisor: inbound queue sizing and reconnect policy
//   - Transcription: Whisper-compatible endpoint for audio messages
//   - Telemetry: OTLP trace exporter
//
// Security: Sensitive data (passwords, API keys) are never logged; config
// directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRunTimeout indicates the per-run timeout is out of range.
	ErrInvalidRunTimeout = errors.New("invalid run timeout")

	// ErrInvalidToolIterations indicates the tool-loop bound is out of range.
	ErrInvalidToolIterations = errors.New("invalid max tool iterations")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidRetrievalTopK indicates the retrieval depth is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidInboundBuffer indicates the inbound queue size is out of range.
	ErrInvalidInboundBuffer = errors.New("invalid inbound buffer size")

	// ErrInvalidRequeueMax indicates the requeue attempt cap is negative.
	ErrInvalidRequeueMax = errors.New("invalid requeue max attempts")

	// ErrInvalidTranscriptionURL indicates the transcription endpoint is malformed.
	ErrInvalidTranscriptionURL = errors.New("invalid transcription URL")

	// ErrInvalidEmbeddingURL indicates the embedding endpoint is malformed.
	ErrInvalidEmbeddingURL = errors.New("invalid embedding URL")
)

const (
	// DefaultMaxToolIterations bounds the tool loop of a single run when the
	// agent record does not set its own limit.
	DefaultMaxToolIterations = 6

	// DefaultHistoryWindow is the number of recent entries assembled into
	// model context when the agent record does not set its own window.
	DefaultHistoryWindow = 20

	// MaxAllowedHistoryWindow is the absolute maximum to prevent OOM.
	MaxAllowedHistoryWindow = 500

	// DefaultRunTimeoutSeconds caps one orchestration run end to end.
	DefaultRunTimeoutSeconds = 120

	// DefaultRetrievalTopK is how many knowledge chunks a run retrieves.
	DefaultRetrievalTopK = 4
)

// Transcription endpoint presets. Any Whisper-compatible
// /audio/transcriptions URL works.
const (
	TranscriptionGroqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	TranscriptionOpenAIURL = "https://api.openai.com/v1/audio/transcriptions"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Engine configuration
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds" json:"run_timeout_seconds"`
	MaxToolIterations int `mapstructure:"max_tool_iterations" json:"max_tool_iterations"`
	HistoryWindow     int `mapstructure:"history_window" json:"history_window"`
	RetrievalTopK     int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Command router options
	CommandCaseSensitivePrefix bool `mapstructure:"command_case_sensitive_prefix" json:"command_case_sensitive_prefix"`
	PolicyBeforeCommands       bool `mapstructure:"policy_before_commands" json:"policy_before_commands"`

	// Supervisor configuration
	InboundBuffer       int `mapstructure:"inbound_buffer" json:"inbound_buffer"`
	RequeueMax          int `mapstructure:"requeue_max" json:"requeue_max"`
	RequeueDelayMillis  int `mapstructure:"requeue_delay_ms" json:"requeue_delay_ms"`
	ReconnectMaxSeconds int `mapstructure:"reconnect_max_seconds" json:"reconnect_max_seconds"`

	// Transcription configuration
	TranscriptionURL    string `mapstructure:"transcription_url" json:"transcription_url"`
	TranscriptionAPIKey string `mapstructure:"transcription_api_key" json:"transcription_api_key"` // SENSITIVE: masked in MarshalJSON
	TranscriptionModel  string `mapstructure:"transcription_model" json:"transcription_model"`
	TranscriptionLang   string `mapstructure:"transcription_lang" json:"transcription_lang"`

	// Embedding configuration (retrieval; empty model disables knowledge bases)
	EmbeddingURL    string `mapstructure:"embedding_url" json:"embedding_url"`
	EmbeddingAPIKey string `mapstructure:"embedding_api_key" json:"embedding_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbeddingModel  string `mapstructure:"embedding_model" json:"embedding_model"`

	// Telemetry configuration
	TracesEnabled bool   `mapstructure:"traces_enabled" json:"traces_enabled"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName   string `mapstructure:"service_name" json:"service_name"`
	Environment   string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.zapagent/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".zapagent")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "zapagent")
	v.SetDefault("postgres_password", "zapagent_dev_password")
	v.SetDefault("postgres_db_name", "zapagent")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Engine defaults
	v.SetDefault("run_timeout_seconds", DefaultRunTimeoutSeconds)
	v.SetDefault("max_tool_iterations", DefaultMaxToolIterations)
	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)

	// Router defaults: commands run before type rules and the agent-switch
	// prefix compares case-insensitively
	v.SetDefault("command_case_sensitive_prefix", false)
	v.SetDefault("policy_before_commands", false)

	// Supervisor defaults
	v.SetDefault("inbound_buffer", 64)
	v.SetDefault("requeue_max", 3)
	v.SetDefault("requeue_delay_ms", 250)
	v.SetDefault("reconnect_max_seconds", 300)

	// Transcription defaults (Groq Whisper)
	v.SetDefault("transcription_url", TranscriptionGroqURL)
	v.SetDefault("transcription_model", "whisper-large-v3")
	v.SetDefault("transcription_lang", "pt")

	// Embedding defaults: no model means retrieval stays off
	v.SetDefault("embedding_url", "")
	v.SetDefault("embedding_model", "")

	// Telemetry defaults
	v.SetDefault("traces_enabled", false)
	v.SetDefault("otlp_endpoint", "localhost:4318")
	v.SetDefault("service_name", "zapagent")
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are env-only on purpose: they never belong in config.yaml.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("log_level", "ZAPAGENT_LOG_LEVEL")
	mustBind("log_json", "ZAPAGENT_LOG_JSON")

	mustBind("postgres_password", "ZAPAGENT_POSTGRES_PASSWORD")

	mustBind("transcription_url", "ZAPAGENT_TRANSCRIPTION_URL")
	mustBind("transcription_api_key", "ZAPAGENT_TRANSCRIPTION_API_KEY")
	mustBind("transcription_model", "ZAPAGENT_TRANSCRIPTION_MODEL")

	mustBind("embedding_url", "ZAPAGENT_EMBEDDING_URL")
	mustBind("embedding_api_key", "ZAPAGENT_EMBEDDING_API_KEY")
	mustBind("embedding_model", "ZAPAGENT_EMBEDDING_MODEL")

	mustBind("traces_enabled", "ZAPAGENT_TRACES_ENABLED")
	mustBind("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	mustBind("environment", "ZAPAGENT_ENVIRONMENT")

	// NOTE: provider API keys live on the agent's provider chain records,
	// not here; DATABASE_URL is read directly in parseDatabaseURL.
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - TranscriptionAPIKey
//   - EmbeddingAPIKey
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.TranscriptionAPIKey = maskSecret(a.TranscriptionAPIKey)
	a.EmbeddingAPIKey = maskSecret(a.EmbeddingAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
