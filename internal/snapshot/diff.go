package snapshot

import (
	"context"
	"sort"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// ChangedFinding pairs a fingerprint present in both snapshots with the
// names of the tracked fields that differ between them.
type ChangedFinding struct {
	Fingerprint string                 `json:"fingerprint"`
	Before      core.NormalizedFinding `json:"before"`
	After       core.NormalizedFinding `json:"after"`
	Changes     []string               `json:"changes"`
}

// DiffSummary is the operator-facing rollup of a comparison.
//
// CriticalIntroduced and CriticalResolved are computed directly from the
// fingerprint maps, not derived from the added/removed lists, so the two
// numbers cannot drift from the set semantics.
type DiffSummary struct {
	NetChange          int `json:"net_change"`
	CriticalIntroduced int `json:"critical_introduced"`
	CriticalResolved   int `json:"critical_resolved"`
}

// DiffResult is the full outcome of comparing two snapshots.
type DiffResult struct {
	BaseID    string                   `json:"base_id"`
	TargetID  string                   `json:"target_id"`
	Added     []core.NormalizedFinding `json:"added"`
	Removed   []core.NormalizedFinding `json:"removed"`
	Changed   []ChangedFinding         `json:"changed"`
	Unchanged int                      `json:"unchanged"`
	Summary   DiffSummary              `json:"summary"`
}

// Compare diffs two snapshots by finding fingerprint. Findings sharing a
// fingerprint are the same issue regardless of message text; tracked
// field differences classify them as changed.
func Compare(ctx context.Context, store Store, baseID, targetID string) (*DiffResult, error) {
	base, err := store.Load(ctx, baseID)
	if err != nil {
		return nil, err
	}
	target, err := store.Load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return Diff(base, target), nil
}

// Diff compares two loaded snapshots, base → target.
func Diff(base, target *Snapshot) *DiffResult {
	baseMap := fingerprintMap(base.Findings)
	targetMap := fingerprintMap(target.Findings)

	result := &DiffResult{
		BaseID:   base.ID,
		TargetID: target.ID,
	}

	for fp, tf := range targetMap {
		bf, ok := baseMap[fp]
		if !ok {
			result.Added = append(result.Added, tf)
			continue
		}
		changes := changedFields(bf, tf)
		if len(changes) == 0 {
			result.Unchanged++
			continue
		}
		result.Changed = append(result.Changed, ChangedFinding{
			Fingerprint: fp,
			Before:      bf,
			After:       tf,
			Changes:     changes,
		})
	}
	for fp, bf := range baseMap {
		if _, ok := targetMap[fp]; !ok {
			result.Removed = append(result.Removed, bf)
		}
	}

	sortFindings(result.Added)
	sortFindings(result.Removed)
	sort.Slice(result.Changed, func(i, j int) bool {
		return result.Changed[i].Fingerprint < result.Changed[j].Fingerprint
	})

	result.Summary = DiffSummary{
		NetChange:          len(target.Findings) - len(base.Findings),
		CriticalIntroduced: criticalOnlyIn(targetMap, baseMap),
		CriticalResolved:   criticalOnlyIn(baseMap, targetMap),
	}
	return result
}

func fingerprintMap(findings []core.NormalizedFinding) map[string]core.NormalizedFinding {
	m := make(map[string]core.NormalizedFinding, len(findings))
	for _, f := range findings {
		m[f.Fingerprint()] = f
	}
	return m
}

// changedFields returns the tracked fields that differ between two
// findings with the same fingerprint, in a fixed order.
func changedFields(before, after core.NormalizedFinding) []string {
	var changes []string
	if before.Severity != after.Severity {
		changes = append(changes, "severity")
	}
	if before.Message != after.Message {
		changes = append(changes, "message")
	}
	if before.Suggestion != after.Suggestion {
		changes = append(changes, "suggestion")
	}
	if before.Explanation != after.Explanation {
		changes = append(changes, "explanation")
	}
	if before.LineEnd != after.LineEnd {
		changes = append(changes, "line_end")
	}
	return changes
}

// criticalOnlyIn counts CRITICAL findings whose fingerprint appears in a
// but not in b.
func criticalOnlyIn(a, b map[string]core.NormalizedFinding) int {
	n := 0
	for fp, f := range a {
		if f.Severity != core.SeverityCritical {
			continue
		}
		if _, ok := b[fp]; !ok {
			n++
		}
	}
	return n
}

func sortFindings(findings []core.NormalizedFinding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.RuleID < b.RuleID
	})
}
