package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// DefaultCapacity bounds the in-memory store when none is configured.
const DefaultCapacity = 50

// MemoryStore is the reference Store implementation: bounded in-memory
// storage evicting the oldest snapshot by creation time. Durable backends
// must honor identical semantics.
type MemoryStore struct {
	capacity int
	clock    core.Clock

	mu          sync.RWMutex
	byID        map[string]*Snapshot
	byExecution map[core.ExecutionID]string
	order       []string // snapshot ids, oldest first
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the wall clock (for tests).
func WithClock(clock core.Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemoryStore creates a bounded in-memory snapshot store. A capacity
// of zero or less falls back to DefaultCapacity.
func NewMemoryStore(capacity int, opts ...MemoryOption) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &MemoryStore{
		capacity:    capacity,
		clock:       core.SystemClock{},
		byID:        make(map[string]*Snapshot),
		byExecution: make(map[core.ExecutionID]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create captures a snapshot. Concurrent creates for the same execution
// are serialized by the store lock; the second one is rejected.
func (s *MemoryStore) Create(ctx context.Context, params CreateParams) (*SnapshotMeta, error) {
	if params.ProjectID == "" {
		return nil, core.ErrValidation("MISSING_PROJECT", "project id is required")
	}
	if params.ExecutionID == "" {
		return nil, core.ErrValidation("MISSING_EXECUTION", "execution id is required")
	}

	checksum, err := ComputeChecksum(params.Findings, params.Config, params.Revision.Commit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byExecution[params.ExecutionID]; ok {
		return nil, core.ErrConflict(core.CodeDuplicateSnapshot,
			fmt.Sprintf("execution %s already has snapshot %s", params.ExecutionID, existing))
	}

	findings := make([]core.NormalizedFinding, len(params.Findings))
	copy(findings, params.Findings)

	snap := &Snapshot{
		SnapshotMeta: SnapshotMeta{
			ID:          uuid.NewString(),
			ProjectID:   params.ProjectID,
			ExecutionID: params.ExecutionID,
			Revision:    params.Revision,
			Checksum:    checksum,
			Stats: Stats{
				TotalFindings:  len(findings),
				SeverityCounts: core.CountBySeverity(findings),
				OverallScore:   params.Score,
			},
			CreatedAt: s.clock.Now(),
		},
		Config:   cloneConfig(params.Config),
		Versions: params.Versions,
		Findings: findings,
	}

	s.byID[snap.ID] = snap
	s.byExecution[snap.ExecutionID] = snap.ID
	s.order = append(s.order, snap.ID)
	s.evictLocked()

	meta := snap.SnapshotMeta
	return &meta, nil
}

// evictLocked drops the oldest snapshots beyond capacity. Caller holds the
// write lock.
func (s *MemoryStore) evictLocked() {
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		if snap, ok := s.byID[oldest]; ok {
			delete(s.byExecution, snap.ExecutionID)
			delete(s.byID, oldest)
		}
	}
}

// List returns project snapshots, newest first.
func (s *MemoryStore) List(ctx context.Context, projectID string, limit int) ([]*SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]*SnapshotMeta, 0)
	for _, snap := range s.byID {
		if snap.ProjectID != projectID {
			continue
		}
		meta := snap.SnapshotMeta
		metas = append(metas, &meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID > metas[j].ID
	})
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

// Load returns the full snapshot bundle.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound("snapshot", id)
	}
	out := *snap
	out.Findings = make([]core.NormalizedFinding, len(snap.Findings))
	copy(out.Findings, snap.Findings)
	out.Config = cloneConfig(snap.Config)
	return &out, nil
}

// Verify recomputes the stored snapshot's checksum. Corruption is
// reported, never repaired.
func (s *MemoryStore) Verify(ctx context.Context, id string) (bool, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return false, err
	}
	return verifyChecksum(snap)
}

func cloneConfig(config map[string]string) map[string]string {
	if config == nil {
		return nil
	}
	out := make(map[string]string, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}

// Len reports how many snapshots the store currently holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ Store = (*MemoryStore)(nil)

// corrupt mutates a stored snapshot in place, bypassing immutability. Test
// hook for exercising verification failures.
func (s *MemoryStore) corrupt(id string, mutate func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.byID[id]
	if !ok {
		return false
	}
	mutate(snap)
	return true
}
