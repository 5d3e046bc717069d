package snapshot

import (
	"context"
	"testing"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

func snapshotOf(t *testing.T, store *MemoryStore, execID core.ExecutionID, findings ...core.NormalizedFinding) string {
	t.Helper()
	meta, err := store.Create(context.Background(), createParams("p1", execID, findings...))
	if err != nil {
		t.Fatalf("creating snapshot for %s: %v", execID, err)
	}
	return meta.ID
}

func TestCompare_SelfIsAllUnchanged(t *testing.T) {
	store := NewMemoryStore(10)
	id := snapshotOf(t, store, "e1",
		testFinding("a.go", 10, "R1", core.SeverityHigh),
		testFinding("b.go", 5, "R2", core.SeverityLow),
	)

	result, err := Compare(context.Background(), store, id, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Added) != 0 || len(result.Removed) != 0 || len(result.Changed) != 0 {
		t.Errorf("self-compare produced changes: %+v", result)
	}
	if result.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", result.Unchanged)
	}
	if result.Summary.NetChange != 0 {
		t.Errorf("net change = %d", result.Summary.NetChange)
	}
}

func TestCompare_AddedRemovedChanged(t *testing.T) {
	store := NewMemoryStore(10)

	base := snapshotOf(t, store, "e1",
		testFinding("a.ts", 10, "RULE1", core.SeverityHigh),
	)
	worse := testFinding("a.ts", 10, "RULE1", core.SeverityCritical)
	target := snapshotOf(t, store, "e2",
		worse,
		testFinding("b.ts", 5, "RULE2", core.SeverityLow),
	)

	result, err := Compare(context.Background(), store, base, target)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Added) != 1 || result.Added[0].FilePath != "b.ts" {
		t.Errorf("added = %+v, want only b.ts", result.Added)
	}
	if len(result.Removed) != 0 {
		t.Errorf("removed = %+v, want none", result.Removed)
	}
	if len(result.Changed) != 1 {
		t.Fatalf("changed = %+v, want one", result.Changed)
	}
	ch := result.Changed[0]
	if ch.Fingerprint != "a.ts:10:RULE1" {
		t.Errorf("fingerprint = %s", ch.Fingerprint)
	}
	if len(ch.Changes) != 1 || ch.Changes[0] != "severity" {
		t.Errorf("changes = %v, want [severity]", ch.Changes)
	}
	if result.Unchanged != 0 {
		t.Errorf("unchanged = %d, want 0", result.Unchanged)
	}
	if result.Summary.NetChange != 1 {
		t.Errorf("net change = %d, want 1", result.Summary.NetChange)
	}
}

func TestCompare_MessageDifferenceIsChangedNotAdded(t *testing.T) {
	store := NewMemoryStore(10)

	a := testFinding("a.go", 10, "R1", core.SeverityHigh)
	b := a
	b.Message = "reworded by a newer rule pack"

	base := snapshotOf(t, store, "e1", a)
	target := snapshotOf(t, store, "e2", b)

	result, err := Compare(context.Background(), store, base, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Error("same fingerprint must never appear as added/removed")
	}
	if len(result.Changed) != 1 || result.Changed[0].Changes[0] != "message" {
		t.Errorf("changed = %+v", result.Changed)
	}
}

func TestCompare_CriticalCountsIndependent(t *testing.T) {
	store := NewMemoryStore(10)

	base := snapshotOf(t, store, "e1",
		testFinding("old.go", 1, "R1", core.SeverityCritical),
		testFinding("keep.go", 2, "R2", core.SeverityCritical),
	)
	target := snapshotOf(t, store, "e2",
		testFinding("keep.go", 2, "R2", core.SeverityCritical),
		testFinding("new.go", 3, "R3", core.SeverityCritical),
		testFinding("mild.go", 4, "R4", core.SeverityLow),
	)

	result, err := Compare(context.Background(), store, base, target)
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.CriticalIntroduced != 1 {
		t.Errorf("critical introduced = %d, want 1", result.Summary.CriticalIntroduced)
	}
	if result.Summary.CriticalResolved != 1 {
		t.Errorf("critical resolved = %d, want 1", result.Summary.CriticalResolved)
	}
}

func TestCompare_MissingSnapshot(t *testing.T) {
	store := NewMemoryStore(10)
	id := snapshotOf(t, store, "e1")

	if _, err := Compare(context.Background(), store, id, "missing"); !core.IsCategory(err, core.ErrCatNotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
}
