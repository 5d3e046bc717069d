package config

import (
	"fmt"
)

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch cfg.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage backend: %q (want sqlite or memory)", cfg.Storage.Backend)
	}

	if cfg.Storage.SnapshotCapacity <= 0 {
		return fmt.Errorf("storage.snapshot_capacity must be positive, got %d", cfg.Storage.SnapshotCapacity)
	}

	if cfg.Pipeline.StalenessThreshold <= 0 {
		return fmt.Errorf("pipeline.staleness_threshold must be positive, got %s", cfg.Pipeline.StalenessThreshold)
	}
	if cfg.Pipeline.Parallelism <= 0 {
		return fmt.Errorf("pipeline.parallelism must be positive, got %d", cfg.Pipeline.Parallelism)
	}
	if cfg.Pipeline.AgentTimeout <= 0 {
		return fmt.Errorf("pipeline.agent_timeout must be positive, got %s", cfg.Pipeline.AgentTimeout)
	}
	if cfg.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries cannot be negative, got %d", cfg.Pipeline.MaxRetries)
	}

	if cfg.Validator.MinConfidence < 0 || cfg.Validator.MinConfidence > 1 {
		return fmt.Errorf("validator.min_confidence must be within [0,1], got %f", cfg.Validator.MinConfidence)
	}
	if cfg.Validator.StrictEvidence && !cfg.Validator.RequireEvidence {
		return fmt.Errorf("validator.strict_evidence requires validator.require_evidence")
	}

	if cfg.Registry.TTL <= 0 {
		return fmt.Errorf("registry.ttl must be positive, got %s", cfg.Registry.TTL)
	}

	return nil
}
