// Package config loads and validates codepulse configuration from files,
// environment variables, and CLI flags.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Registry  RegistryConfig  `mapstructure:"registry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Backend selects the state store: "sqlite" or "memory".
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// SnapshotCapacity bounds the in-memory snapshot store; the oldest
	// snapshot is evicted when the bound is exceeded.
	SnapshotCapacity int `mapstructure:"snapshot_capacity"`
}

// PipelineConfig configures the stage orchestrator.
type PipelineConfig struct {
	// StalenessThreshold is the wall-clock age after which an in-flight
	// execution is considered abandoned and reaped.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	// Parallelism bounds concurrent agent invocations during the
	// static-analysis stage.
	Parallelism int `mapstructure:"parallelism"`
	// EnableAI turns the AI enhancement stage on by default.
	EnableAI bool `mapstructure:"enable_ai"`
	// AICommand is the external command (program plus arguments) invoked
	// per finding by the AI enhancement stage. Empty disables enrichment
	// even when EnableAI is set.
	AICommand []string `mapstructure:"ai_command"`
	// AgentTimeout is the fallback timeout for agents without one.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	// MaxRetries is the fallback retry budget for agents without one.
	MaxRetries int `mapstructure:"max_retries"`
}

// ValidatorConfig configures the AI output validator.
type ValidatorConfig struct {
	// MinConfidence is the acceptance gate for generative output.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// RequireEvidence activates the evidence-reference policy.
	RequireEvidence bool `mapstructure:"require_evidence"`
	// StrictEvidence rejects missing evidence instead of warning.
	StrictEvidence bool `mapstructure:"strict_evidence"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	// TTL is the registry cache lifetime.
	TTL time.Duration `mapstructure:"ttl"`
	// AgentsFile optionally overrides the builtin agent set with a YAML
	// file; changes to the file invalidate the cache.
	AgentsFile string `mapstructure:"agents_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8791",
		},
		Storage: StorageConfig{
			Backend:          "sqlite",
			Path:             ".codepulse/state.db",
			SnapshotCapacity: 50,
		},
		Pipeline: PipelineConfig{
			StalenessThreshold: 10 * time.Minute,
			Parallelism:        4,
			EnableAI:           true,
			AgentTimeout:       2 * time.Minute,
			MaxRetries:         2,
		},
		Validator: ValidatorConfig{
			MinConfidence:   0.6,
			RequireEvidence: false,
			StrictEvidence:  false,
		},
		Registry: RegistryConfig{
			TTL: 30 * time.Second,
		},
	}
}
