package registry

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// Registry is a read-through TTL cache over an AgentConfigProvider.
//
// Refresh-on-expiry is safe to race: concurrent callers may refresh at the
// same time and the last write wins, because the provider is a pure read
// with no side effects. The registry is lifetime-scoped state owned by its
// constructor's caller, never a process-wide singleton.
type Registry struct {
	provider core.AgentConfigProvider
	ttl      time.Duration
	clock    core.Clock

	mu        sync.RWMutex
	cached    []core.AgentConfig
	fetchedAt time.Time
}

// Option configures the registry.
type Option func(*Registry)

// WithClock overrides the wall clock (for tests).
func WithClock(clock core.Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New creates a registry caching the provider's agents for ttl.
func New(provider core.AgentConfigProvider, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		provider: provider,
		ttl:      ttl,
		clock:    core.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Agents returns the cached agent set, refreshing it when expired.
func (r *Registry) Agents(ctx context.Context) ([]core.AgentConfig, error) {
	r.mu.RLock()
	if r.cached != nil && r.clock.Now().Sub(r.fetchedAt) < r.ttl {
		agents := make([]core.AgentConfig, len(r.cached))
		copy(agents, r.cached)
		r.mu.RUnlock()
		return agents, nil
	}
	r.mu.RUnlock()

	agents, err := r.provider.Agents(ctx)
	if err != nil {
		// Serve a stale cache over failing outright.
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.cached != nil {
			stale := make([]core.AgentConfig, len(r.cached))
			copy(stale, r.cached)
			return stale, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.cached = agents
	r.fetchedAt = r.clock.Now()
	r.mu.Unlock()

	out := make([]core.AgentConfig, len(agents))
	copy(out, agents)
	return out, nil
}

// Invalidate clears the cache, forcing the next Agents call to refresh.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.fetchedAt = time.Time{}
}

var _ core.AgentConfigProvider = (*Registry)(nil)
