package core

import (
	"sort"
	"time"
)

// AgentConfig is one analysis agent's registry record. The pipeline only
// reads these entries; mutation is an administrative concern.
type AgentConfig struct {
	Name        string        `json:"name" yaml:"name"`
	DisplayName string        `json:"display_name" yaml:"display_name"`
	Category    string        `json:"category" yaml:"category"`
	Priority    int           `json:"priority" yaml:"priority"`
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	Prompt      string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
}

// SortAgents orders agents by priority (lower runs first), name as
// tie-breaker for determinism.
func SortAgents(agents []AgentConfig) {
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].Priority != agents[j].Priority {
			return agents[i].Priority < agents[j].Priority
		}
		return agents[i].Name < agents[j].Name
	})
}

// EnabledAgents filters out disabled entries, preserving order.
func EnabledAgents(agents []AgentConfig) []AgentConfig {
	out := make([]AgentConfig, 0, len(agents))
	for _, a := range agents {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}
