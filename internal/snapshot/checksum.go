package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// reducedFinding is the per-finding projection that feeds the checksum.
// Only fields that define a finding's identity and judgment participate;
// volatile fields (ids, timestamps, enrichment text) are excluded so the
// checksum is stable across re-serialization.
type reducedFinding struct {
	FilePath  string        `json:"file_path"`
	LineStart int           `json:"line_start"`
	RuleID    string        `json:"rule_id"`
	Severity  core.Severity `json:"severity"`
	Message   string        `json:"message"`
}

// ComputeChecksum derives the snapshot checksum from the finding set, the
// analysis configuration, and the commit hash. Serialization is
// canonical: findings sorted by fingerprint, config keys sorted, so the
// same inputs always hash identically.
func ComputeChecksum(findings []core.NormalizedFinding, config map[string]string, commit string) (string, error) {
	reduced := make([]reducedFinding, 0, len(findings))
	for _, f := range findings {
		reduced = append(reduced, reducedFinding{
			FilePath:  f.FilePath,
			LineStart: f.LineStart,
			RuleID:    f.RuleID,
			Severity:  f.Severity,
			Message:   f.Message,
		})
	}
	sort.Slice(reduced, func(i, j int) bool {
		a, b := reduced[i], reduced[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.RuleID < b.RuleID
	})

	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	canonicalConfig := make([][2]string, 0, len(keys))
	for _, k := range keys {
		canonicalConfig = append(canonicalConfig, [2]string{k, config[k]})
	}

	payload := struct {
		Findings []reducedFinding `json:"findings"`
		Config   [][2]string      `json:"config"`
		Commit   string           `json:"commit"`
	}{reduced, canonicalConfig, commit}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serializing checksum payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// verifyChecksum recomputes a snapshot's checksum from its stored content.
func verifyChecksum(s *Snapshot) (bool, error) {
	computed, err := ComputeChecksum(s.Findings, s.Config, s.Revision.Commit)
	if err != nil {
		return false, err
	}
	return computed == s.Checksum, nil
}
