package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// MemoryStore is an in-memory ExecutionStore/ProjectStore for tests and
// ephemeral runs. Executions are stored as deep copies so callers cannot
// mutate stored state through retained pointers.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[core.ExecutionID]*core.AnalysisExecution
	findings   map[core.ExecutionID][]core.NormalizedFinding
	projects   map[string]*core.Project
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[core.ExecutionID]*core.AnalysisExecution),
		findings:   make(map[core.ExecutionID][]core.NormalizedFinding),
		projects:   make(map[string]*core.Project),
	}
}

// SaveExecution stores a deep copy of the execution. Like the SQLite
// store, it refuses writes on a done context.
func (s *MemoryStore) SaveExecution(ctx context.Context, exec *core.AnalysisExecution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clone, err := cloneExecution(exec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = clone
	return nil
}

// GetExecution returns a deep copy of the stored execution.
func (s *MemoryStore) GetExecution(ctx context.Context, id core.ExecutionID) (*core.AnalysisExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, core.ErrNotFound("execution", string(id))
	}
	return cloneExecution(exec)
}

// ListExecutions returns a project's executions, newest first.
func (s *MemoryStore) ListExecutions(ctx context.Context, projectID string, limit int) ([]*core.AnalysisExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.AnalysisExecution
	for _, exec := range s.executions {
		if exec.ProjectID != projectID {
			continue
		}
		clone, err := cloneExecution(exec)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindActiveExecution returns the project's PENDING or RUNNING execution.
func (s *MemoryStore) FindActiveExecution(ctx context.Context, projectID string) (*core.AnalysisExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active *core.AnalysisExecution
	for _, exec := range s.executions {
		if exec.ProjectID != projectID || !exec.IsActive() {
			continue
		}
		if active == nil || exec.CreatedAt.After(active.CreatedAt) {
			active = exec
		}
	}
	if active == nil {
		return nil, nil
	}
	return cloneExecution(active)
}

// SaveFindings replaces the stored finding set of an execution.
func (s *MemoryStore) SaveFindings(ctx context.Context, id core.ExecutionID, findings []core.NormalizedFinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clone := make([]core.NormalizedFinding, len(findings))
	copy(clone, findings)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings[id] = clone
	return nil
}

// GetFindings returns an execution's normalized findings.
func (s *MemoryStore) GetFindings(ctx context.Context, id core.ExecutionID) ([]core.NormalizedFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.findings[id]
	out := make([]core.NormalizedFinding, len(stored))
	copy(out, stored)
	return out, nil
}

// SaveProject upserts a project record.
func (s *MemoryStore) SaveProject(ctx context.Context, p *core.Project) error {
	clone := *p
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &clone
	return nil
}

// GetProject loads a project by id.
func (s *MemoryStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, core.ErrNotFound("project", id)
	}
	clone := *p
	return &clone, nil
}

// cloneExecution deep-copies via JSON. Slow but obviously correct, and the
// store is not on a hot path.
func cloneExecution(exec *core.AnalysisExecution) (*core.AnalysisExecution, error) {
	data, err := json.Marshal(exec)
	if err != nil {
		return nil, err
	}
	var clone core.AnalysisExecution
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

var (
	_ core.ExecutionStore = (*MemoryStore)(nil)
	_ core.ProjectStore   = (*MemoryStore)(nil)
)
