// Package snapshot persists immutable, checksummed captures of an
// execution's findings and supports listing, verification, and diffing.
package snapshot

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// FormatVersion is the current snapshot serialization format version.
const FormatVersion = 1

// Versions records the tool and rule versions active when a snapshot was
// taken. Part of the checksummed bundle.
type Versions struct {
	Pipeline string            `json:"pipeline,omitempty"`
	RuleSets map[string]string `json:"rule_sets,omitempty"`
}

// Stats is the summary block of a snapshot.
type Stats struct {
	TotalFindings  int                   `json:"total_findings"`
	SeverityCounts map[core.Severity]int `json:"severity_counts"`
	OverallScore   float64               `json:"overall_score"`
}

// SnapshotMeta is the listing view of a snapshot: everything except the
// finding set itself.
type SnapshotMeta struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	ExecutionID core.ExecutionID  `json:"execution_id"`
	Revision    core.RevisionInfo `json:"revision"`
	Checksum    string            `json:"checksum"`
	Stats       Stats             `json:"stats"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Snapshot is the full immutable bundle. Once created it is never
// mutated; verification recomputes the checksum from the stored content.
type Snapshot struct {
	SnapshotMeta
	Config   map[string]string        `json:"config,omitempty"`
	Versions Versions                 `json:"versions"`
	Findings []core.NormalizedFinding `json:"findings"`
}

// CreateParams carries everything needed to capture a snapshot.
type CreateParams struct {
	ProjectID   string
	ExecutionID core.ExecutionID
	Revision    core.RevisionInfo
	Config      map[string]string
	Versions    Versions
	Findings    []core.NormalizedFinding
	Score       float64
}

// Store is the snapshot persistence contract. Backends are pluggable; all
// must honor identical semantics including checksum verification and the
// at-most-one-snapshot-per-execution rule.
type Store interface {
	// Create captures and persists a snapshot, returning its metadata.
	// A second create for the same execution id is a conflict.
	Create(ctx context.Context, params CreateParams) (*SnapshotMeta, error)

	// List returns snapshot metadata for a project, newest first.
	List(ctx context.Context, projectID string, limit int) ([]*SnapshotMeta, error)

	// Load returns the full bundle, or a NOT_FOUND domain error.
	Load(ctx context.Context, id string) (*Snapshot, error)

	// Verify recomputes the checksum of a stored snapshot and compares it
	// against the stored value. A mismatch is reported, never repaired.
	Verify(ctx context.Context, id string) (bool, error)
}
