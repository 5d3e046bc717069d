// Package registry supplies analysis agent configuration from a backing
// store with a short-lived cache and a built-in fallback set.
package registry

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

//go:embed builtin.yaml
var builtinAgents []byte

// agentFile is the YAML shape of an agents file.
type agentFile struct {
	Agents []agentEntry `yaml:"agents"`
}

// agentEntry mirrors core.AgentConfig with a string timeout.
type agentEntry struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
	Priority    int    `yaml:"priority"`
	Enabled     bool   `yaml:"enabled"`
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	Prompt      string `yaml:"prompt"`
	Model       string `yaml:"model"`
}

func (e agentEntry) toConfig() (core.AgentConfig, error) {
	cfg := core.AgentConfig{
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Category:    e.Category,
		Priority:    e.Priority,
		Enabled:     e.Enabled,
		MaxRetries:  e.MaxRetries,
		Prompt:      e.Prompt,
		Model:       e.Model,
	}
	if e.Name == "" {
		return cfg, fmt.Errorf("agent entry missing name")
	}
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("agent %s: invalid timeout %q: %w", e.Name, e.Timeout, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func parseAgents(data []byte) ([]core.AgentConfig, error) {
	var file agentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing agents: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("agents file defines no agents")
	}
	agents := make([]core.AgentConfig, 0, len(file.Agents))
	for _, e := range file.Agents {
		cfg, err := e.toConfig()
		if err != nil {
			return nil, err
		}
		agents = append(agents, cfg)
	}
	core.SortAgents(agents)
	return agents, nil
}

// StaticProvider serves the built-in agent set. It never fails, which makes
// it the fallback tier.
type StaticProvider struct {
	agents []core.AgentConfig
}

// NewStaticProvider creates a provider backed by the embedded builtin set.
func NewStaticProvider() *StaticProvider {
	agents, err := parseAgents(builtinAgents)
	if err != nil {
		// The embedded set is compiled in; a parse failure is a build bug.
		panic(fmt.Sprintf("builtin agents: %v", err))
	}
	return &StaticProvider{agents: agents}
}

// Agents returns a copy of the builtin agent set.
func (p *StaticProvider) Agents(_ context.Context) ([]core.AgentConfig, error) {
	out := make([]core.AgentConfig, len(p.agents))
	copy(out, p.agents)
	return out, nil
}

// FileProvider reads agent configuration from a YAML file on every call.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider reading from the given YAML file.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Agents loads and parses the agents file.
func (p *FileProvider) Agents(_ context.Context) ([]core.AgentConfig, error) {
	data, err := os.ReadFile(p.path) // #nosec G304 -- operator-configured path
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}
	return parseAgents(data)
}

// TwoTierProvider consults a primary provider and falls back to a secondary
// one when the primary is unreachable. The fallback decision is explicit so
// it can be tested in isolation.
type TwoTierProvider struct {
	primary  core.AgentConfigProvider
	fallback core.AgentConfigProvider
	logger   *logging.Logger
}

// NewTwoTierProvider creates a two-tier provider.
func NewTwoTierProvider(primary, fallback core.AgentConfigProvider, logger *logging.Logger) *TwoTierProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TwoTierProvider{primary: primary, fallback: fallback, logger: logger}
}

// Agents returns the primary's agents, or the fallback's when the primary
// errors out.
func (p *TwoTierProvider) Agents(ctx context.Context) ([]core.AgentConfig, error) {
	agents, err := p.primary.Agents(ctx)
	if err == nil {
		return agents, nil
	}
	p.logger.Warn("agent store unreachable, using fallback set", "error", err)
	return p.fallback.Agents(ctx)
}

var (
	_ core.AgentConfigProvider = (*StaticProvider)(nil)
	_ core.AgentConfigProvider = (*FileProvider)(nil)
	_ core.AgentConfigProvider = (*TwoTierProvider)(nil)
)
