package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingProvider counts calls and can be made to fail.
type countingProvider struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	agents []core.AgentConfig
}

func (p *countingProvider) Agents(_ context.Context) ([]core.AgentConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("store unreachable")
	}
	return p.agents, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestStaticProvider_BuiltinSet(t *testing.T) {
	p := NewStaticProvider()
	agents, err := p.Agents(context.Background())
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	if len(agents) != 6 {
		t.Fatalf("builtin agent count = %d, want 6", len(agents))
	}
	// Priority order: structural first, test last.
	if agents[0].Name != "structural" {
		t.Errorf("first agent = %s, want structural", agents[0].Name)
	}
	if agents[len(agents)-1].Name != "test" {
		t.Errorf("last agent = %s, want test", agents[len(agents)-1].Name)
	}
	for _, a := range agents {
		if a.Timeout <= 0 {
			t.Errorf("agent %s has no timeout", a.Name)
		}
		if !a.Enabled {
			t.Errorf("builtin agent %s should be enabled", a.Name)
		}
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `
agents:
  - name: custom
    display_name: Custom Agent
    category: QUALITY
    priority: 5
    enabled: true
    timeout: 45s
    max_retries: 1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	agents, err := NewFileProvider(path).Agents(context.Background())
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "custom" {
		t.Fatalf("agents = %+v", agents)
	}
	if agents[0].Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", agents[0].Timeout)
	}
}

func TestFileProvider_Errors(t *testing.T) {
	if _, err := NewFileProvider("/nonexistent/agents.yaml").Agents(context.Background()); err == nil {
		t.Error("missing file should error")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	_ = os.WriteFile(path, []byte("agents: []"), 0o600)
	if _, err := NewFileProvider(path).Agents(context.Background()); err == nil {
		t.Error("empty agent list should error")
	}

	_ = os.WriteFile(path, []byte("agents:\n  - name: x\n    timeout: banana"), 0o600)
	if _, err := NewFileProvider(path).Agents(context.Background()); err == nil {
		t.Error("bad timeout should error")
	}
}

func TestTwoTierProvider_Fallback(t *testing.T) {
	primary := &countingProvider{fail: true}
	fallback := &countingProvider{agents: []core.AgentConfig{{Name: "fallback", Enabled: true}}}

	p := NewTwoTierProvider(primary, fallback, logging.NewNop())
	agents, err := p.Agents(context.Background())
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "fallback" {
		t.Errorf("agents = %+v, want fallback set", agents)
	}

	// Primary healthy again: fallback not consulted.
	primary.fail = false
	primary.agents = []core.AgentConfig{{Name: "primary", Enabled: true}}
	agents, err = p.Agents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if agents[0].Name != "primary" {
		t.Errorf("agents = %+v, want primary set", agents)
	}
}

func TestRegistry_CachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &countingProvider{agents: []core.AgentConfig{{Name: "a", Enabled: true}}}
	reg := New(provider, 30*time.Second, WithClock(clock))

	for i := 0; i < 3; i++ {
		if _, err := reg.Agents(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1 within TTL", got)
	}

	clock.Advance(31 * time.Second)
	if _, err := reg.Agents(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := provider.callCount(); got != 2 {
		t.Errorf("provider calls = %d, want 2 after expiry", got)
	}
}

func TestRegistry_Invalidate(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &countingProvider{agents: []core.AgentConfig{{Name: "a", Enabled: true}}}
	reg := New(provider, time.Hour, WithClock(clock))

	_, _ = reg.Agents(context.Background())
	reg.Invalidate()
	_, _ = reg.Agents(context.Background())

	if got := provider.callCount(); got != 2 {
		t.Errorf("provider calls = %d, want 2 after invalidate", got)
	}
}

func TestRegistry_ServesStaleOnProviderFailure(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &countingProvider{agents: []core.AgentConfig{{Name: "a", Enabled: true}}}
	reg := New(provider, time.Second, WithClock(clock))

	if _, err := reg.Agents(context.Background()); err != nil {
		t.Fatal(err)
	}

	provider.fail = true
	clock.Advance(2 * time.Second)

	agents, err := reg.Agents(context.Background())
	if err != nil {
		t.Fatalf("expected stale cache, got error %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "a" {
		t.Errorf("agents = %+v", agents)
	}
}

func TestRegistry_ErrorWithEmptyCache(t *testing.T) {
	provider := &countingProvider{fail: true}
	reg := New(provider, time.Second)

	if _, err := reg.Agents(context.Background()); err == nil {
		t.Error("expected error when provider fails and cache is empty")
	}
}

func TestWatch_InvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := []byte("agents:\n  - name: a\n    enabled: true\n    priority: 1\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Now()}
	provider := &countingProvider{agents: []core.AgentConfig{{Name: "a", Enabled: true}}}
	reg := New(provider, time.Hour, WithClock(clock))

	w, err := Watch(path, reg, logging.NewNop())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	_, _ = reg.Agents(context.Background())
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	// The watcher invalidates asynchronously; poll for the refetch.
	deadline := time.After(2 * time.Second)
	for provider.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("registry not invalidated after file change")
		case <-time.After(10 * time.Millisecond):
			_, _ = reg.Agents(context.Background())
		}
	}
}
