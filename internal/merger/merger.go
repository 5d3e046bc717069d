// Package merger reconciles raw per-agent findings into the normalized
// finding set the rest of the pipeline operates on. The output is treated
// as an unordered set keyed by fingerprint; ordering here is only for
// determinism.
package merger

import (
	"sort"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// Normalize merges raw agent findings into normalized findings.
//
// Severity and category labels are mapped onto the fixed enumerations.
// Findings sharing a fingerprint are collapsed into one; the most severe
// report wins and its message is kept. All merged findings are marked
// deterministic; generative enrichment happens downstream.
func Normalize(raw []core.RawFinding) []core.NormalizedFinding {
	byFingerprint := make(map[string]*core.NormalizedFinding, len(raw))

	for _, r := range raw {
		f := core.NormalizedFinding{
			FilePath:      r.FilePath,
			LineStart:     r.LineStart,
			LineEnd:       r.LineEnd,
			Severity:      core.NormalizeSeverity(r.Severity),
			Category:      core.NormalizeCategory(r.Category),
			SubCategory:   r.Category,
			RuleID:        r.RuleID,
			Message:       r.Message,
			Suggestion:    r.Suggestion,
			Deterministic: true,
		}
		if f.LineEnd < f.LineStart {
			f.LineEnd = f.LineStart
		}

		key := f.Fingerprint()
		existing, ok := byFingerprint[key]
		if !ok {
			byFingerprint[key] = &f
			continue
		}
		if f.Severity.Rank() < existing.Severity.Rank() {
			// Keep the more severe report wholesale so severity and
			// message stay consistent.
			byFingerprint[key] = &f
		}
	}

	out := make([]core.NormalizedFinding, 0, len(byFingerprint))
	for _, f := range byFingerprint {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		if out[i].LineStart != out[j].LineStart {
			return out[i].LineStart < out[j].LineStart
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}
