package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

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

func testFinding(file string, line int, rule string, sev core.Severity) core.NormalizedFinding {
	return core.NormalizedFinding{
		FilePath: file, LineStart: line, LineEnd: line, RuleID: rule,
		Severity: sev, Category: core.CategoryQuality,
		Message: "issue at " + file, Deterministic: true,
	}
}

func createParams(projectID string, execID core.ExecutionID, findings ...core.NormalizedFinding) CreateParams {
	return CreateParams{
		ProjectID:   projectID,
		ExecutionID: execID,
		Revision:    core.RevisionInfo{Branch: "main", Commit: "abc123"},
		Config:      map[string]string{"deep_scan": "false"},
		Findings:    findings,
		Score:       90,
	}
}

func TestCreateAndLoad(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	meta, err := store.Create(ctx, createParams("p1", "e1",
		testFinding("a.go", 10, "R1", core.SeverityHigh)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if meta.Checksum == "" {
		t.Error("checksum not computed")
	}
	if meta.Stats.TotalFindings != 1 {
		t.Errorf("total findings = %d", meta.Stats.TotalFindings)
	}

	snap, err := store.Load(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Findings) != 1 || snap.Findings[0].RuleID != "R1" {
		t.Errorf("findings = %+v", snap.Findings)
	}
}

func TestCreate_DuplicateExecutionConflicts(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if _, err := store.Create(ctx, createParams("p1", "e1")); err != nil {
		t.Fatal(err)
	}
	_, err := store.Create(ctx, createParams("p1", "e1"))
	if err == nil {
		t.Fatal("second create for same execution succeeded")
	}
	if !core.IsCategory(err, core.ErrCatConflict) {
		t.Errorf("category = %s, want conflict", core.GetCategory(err))
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := NewMemoryStore(10).Load(context.Background(), "nope")
	if !core.IsCategory(err, core.ErrCatNotFound) {
		t.Errorf("category = %s, want not_found", core.GetCategory(err))
	}
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(10, WithClock(clock))
	ctx := context.Background()

	for i, exec := range []core.ExecutionID{"e1", "e2", "e3"} {
		if _, err := store.Create(ctx, createParams("p1", exec)); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Duration(i+1) * time.Minute)
	}
	_, _ = store.Create(ctx, createParams("other", "e9"))

	metas, err := store.List(ctx, "p1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want limit respected", len(metas))
	}
	if metas[0].ExecutionID != "e3" || metas[1].ExecutionID != "e2" {
		t.Errorf("order = %s, %s; want newest first", metas[0].ExecutionID, metas[1].ExecutionID)
	}
}

func TestEviction_OldestByCreationTime(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(2, WithClock(clock))
	ctx := context.Background()

	first, _ := store.Create(ctx, createParams("p1", "e1"))
	clock.Advance(time.Minute)
	_, _ = store.Create(ctx, createParams("p1", "e2"))
	clock.Advance(time.Minute)
	_, _ = store.Create(ctx, createParams("p1", "e3"))

	if store.Len() != 2 {
		t.Fatalf("len = %d, want capacity enforced", store.Len())
	}
	if _, err := store.Load(ctx, first.ID); !core.IsCategory(err, core.ErrCatNotFound) {
		t.Error("oldest snapshot should have been evicted")
	}
	// The evicted execution id may be reused.
	if _, err := store.Create(ctx, createParams("p1", "e1")); err != nil {
		t.Errorf("recreate after eviction: %v", err)
	}
}

func TestVerify(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	meta, err := store.Create(ctx, createParams("p1", "e1",
		testFinding("a.go", 10, "R1", core.SeverityHigh)))
	if err != nil {
		t.Fatal(err)
	}

	ok, err := store.Verify(ctx, meta.ID)
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want intact", ok, err)
	}

	store.corrupt(meta.ID, func(s *Snapshot) {
		s.Findings[0].Severity = core.SeverityLow
	})
	ok, err = store.Verify(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("corrupted snapshot verified as intact")
	}
}

func TestSnapshot_ImmutableAgainstCallerMutation(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	findings := []core.NormalizedFinding{testFinding("a.go", 10, "R1", core.SeverityHigh)}
	meta, err := store.Create(ctx, createParams("p1", "e1", findings...))
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's slice or a loaded copy must not affect storage.
	findings[0].Severity = core.SeverityInfo
	loaded, _ := store.Load(ctx, meta.ID)
	loaded.Findings[0].Severity = core.SeverityInfo

	if ok, _ := store.Verify(ctx, meta.ID); !ok {
		t.Error("stored snapshot changed through an external reference")
	}
}

func TestChecksum_Stability(t *testing.T) {
	findings := []core.NormalizedFinding{
		testFinding("a.go", 10, "R1", core.SeverityHigh),
		testFinding("b.go", 5, "R2", core.SeverityLow),
	}
	config := map[string]string{"deep_scan": "true", "mode": "full"}

	first, err := ComputeChecksum(findings, config, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeChecksum(findings, config, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same inputs produced different checksums")
	}

	// Input order must not matter.
	reversed := []core.NormalizedFinding{findings[1], findings[0]}
	third, _ := ComputeChecksum(reversed, config, "abc123")
	if third != first {
		t.Error("finding order changed the checksum")
	}

	// Changing any one finding's severity changes the checksum.
	changed := make([]core.NormalizedFinding, len(findings))
	copy(changed, findings)
	changed[0].Severity = core.SeverityCritical
	fourth, _ := ComputeChecksum(changed, config, "abc123")
	if fourth == first {
		t.Error("severity change did not change the checksum")
	}

	// Non-checksummed fields are ignored.
	enriched := make([]core.NormalizedFinding, len(findings))
	copy(enriched, findings)
	enriched[0].Explanation = "generated later"
	fifth, _ := ComputeChecksum(enriched, config, "abc123")
	if fifth != first {
		t.Error("enrichment text leaked into the checksum")
	}

	if sixth, _ := ComputeChecksum(findings, config, "def456"); sixth == first {
		t.Error("commit change did not change the checksum")
	}
}
