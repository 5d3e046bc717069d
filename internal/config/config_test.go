package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.StalenessThreshold != 10*time.Minute {
		t.Errorf("staleness = %s, want 10m", cfg.Pipeline.StalenessThreshold)
	}
	if cfg.Validator.MinConfidence != 0.6 {
		t.Errorf("min confidence = %f, want 0.6", cfg.Validator.MinConfidence)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %s, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Pipeline.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", cfg.Pipeline.Parallelism)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pipeline:
  parallelism: 8
  enable_ai: false
validator:
  min_confidence: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.Parallelism != 8 {
		t.Errorf("parallelism = %d, want 8", cfg.Pipeline.Parallelism)
	}
	if cfg.Pipeline.EnableAI {
		t.Error("enable_ai should be false")
	}
	if cfg.Validator.MinConfidence != 0.8 {
		t.Errorf("min confidence = %f, want 0.8", cfg.Validator.MinConfidence)
	}
	// Untouched values keep defaults.
	if cfg.Server.Addr != "127.0.0.1:8791" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"bad backend", func(c *Config) { c.Storage.Backend = "postgres" }, true},
		{"zero capacity", func(c *Config) { c.Storage.SnapshotCapacity = 0 }, true},
		{"negative staleness", func(c *Config) { c.Pipeline.StalenessThreshold = -time.Minute }, true},
		{"zero parallelism", func(c *Config) { c.Pipeline.Parallelism = 0 }, true},
		{"confidence above one", func(c *Config) { c.Validator.MinConfidence = 1.5 }, true},
		{"strict without require", func(c *Config) { c.Validator.StrictEvidence = true }, true},
		{"strict with require", func(c *Config) {
			c.Validator.RequireEvidence = true
			c.Validator.StrictEvidence = true
		}, false},
		{"zero ttl", func(c *Config) { c.Registry.TTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("CODEPULSE_PIPELINE_PARALLELISM", "16")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Parallelism != 16 {
		t.Errorf("parallelism = %d, want 16 from env", cfg.Pipeline.Parallelism)
	}
}
