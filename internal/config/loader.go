package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "CODEPULSE",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "CODEPULSE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CODEPULSE_*)
// 3. Project config (.codepulse/config.yaml in current directory)
// 4. User config (~/.config/codepulse/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".codepulse")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "codepulse"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults configures default values from Default().
func (l *Loader) setDefaults() {
	def := Default()

	l.v.SetDefault("log.level", def.Log.Level)
	l.v.SetDefault("log.format", def.Log.Format)

	l.v.SetDefault("server.addr", def.Server.Addr)

	l.v.SetDefault("storage.backend", def.Storage.Backend)
	l.v.SetDefault("storage.path", def.Storage.Path)
	l.v.SetDefault("storage.snapshot_capacity", def.Storage.SnapshotCapacity)

	l.v.SetDefault("pipeline.staleness_threshold", def.Pipeline.StalenessThreshold)
	l.v.SetDefault("pipeline.parallelism", def.Pipeline.Parallelism)
	l.v.SetDefault("pipeline.enable_ai", def.Pipeline.EnableAI)
	l.v.SetDefault("pipeline.ai_command", def.Pipeline.AICommand)
	l.v.SetDefault("pipeline.agent_timeout", def.Pipeline.AgentTimeout)
	l.v.SetDefault("pipeline.max_retries", def.Pipeline.MaxRetries)

	l.v.SetDefault("validator.min_confidence", def.Validator.MinConfidence)
	l.v.SetDefault("validator.require_evidence", def.Validator.RequireEvidence)
	l.v.SetDefault("validator.strict_evidence", def.Validator.StrictEvidence)

	l.v.SetDefault("registry.ttl", def.Registry.TTL)
	l.v.SetDefault("registry.agents_file", def.Registry.AgentsFile)
}
