package core

import (
	"fmt"
	"time"
)

// Stage represents one phase of the fixed analysis sequence.
type Stage string

const (
	// StageSourceCollection gathers project sources and revision metadata.
	StageSourceCollection Stage = "source_collection"

	// StageLanguageDetection determines the languages present in the project.
	StageLanguageDetection Stage = "language_detection"

	// StageASTParsing parses sources into syntax trees for the analyzers.
	StageASTParsing Stage = "ast_parsing"

	// StageStaticAnalysis runs the configured analysis agents. Agents may
	// execute concurrently; the stage boundary is a synchronization point.
	StageStaticAnalysis Stage = "static_analysis"

	// StageRuleParsing resolves rule identifiers against the rule catalog.
	StageRuleParsing Stage = "rule_parsing"

	// StageCategorization assigns main/sub categories to raw findings.
	StageCategorization Stage = "categorization"

	// StageNormalization merges raw agent output into the normalized
	// finding set keyed by fingerprint.
	StageNormalization Stage = "normalization"

	// StageAIEnhancement enriches findings with validated generative
	// explanations. It is the only best-effort stage: its failure degrades
	// the pipeline instead of aborting it.
	StageAIEnhancement Stage = "ai_enhancement"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{
		StageSourceCollection,
		StageLanguageDetection,
		StageASTParsing,
		StageStaticAnalysis,
		StageRuleParsing,
		StageCategorization,
		StageNormalization,
		StageAIEnhancement,
	}
}

// StageOrder returns the numeric order of a stage (0-indexed), or -1 when
// the stage is unknown.
func StageOrder(s Stage) int {
	for i, stage := range AllStages() {
		if stage == s {
			return i
		}
	}
	return -1
}

// Required reports whether a failure of this stage aborts the pipeline.
// Best-effort stages degrade gracefully instead.
func (s Stage) Required() bool {
	return s != StageAIEnhancement
}

// ValidStage checks if a stage value is part of the fixed sequence.
func ValidStage(s Stage) bool {
	return StageOrder(s) >= 0
}

// ParseStage converts a string to a Stage with validation.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !ValidStage(s) {
		return "", fmt.Errorf("invalid stage: %s", v)
	}
	return s, nil
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Description returns a human-readable description of the stage.
func (s Stage) Description() string {
	switch s {
	case StageSourceCollection:
		return "Collect project sources and revision metadata"
	case StageLanguageDetection:
		return "Detect languages present in the project"
	case StageASTParsing:
		return "Parse sources into syntax trees"
	case StageStaticAnalysis:
		return "Run analysis agents against the parsed sources"
	case StageRuleParsing:
		return "Resolve rule identifiers against the catalog"
	case StageCategorization:
		return "Assign categories to raw findings"
	case StageNormalization:
		return "Merge raw findings into the normalized set"
	case StageAIEnhancement:
		return "Enrich findings with validated AI explanations"
	default:
		return "Unknown stage"
	}
}

// StageStatus represents the lifecycle state of one stage record.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// StageRecord tracks status and progress of one stage within an execution.
// Statuses are monotonic: a record never leaves a terminal state.
type StageRecord struct {
	Stage       Stage       `json:"stage"`
	Status      StageStatus `json:"status"`
	Progress    int         `json:"progress"`
	Message     string      `json:"message,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// NewStageRecord creates a pending record for the given stage.
func NewStageRecord(stage Stage) *StageRecord {
	return &StageRecord{
		Stage:    stage,
		Status:   StageStatusPending,
		Progress: 0,
	}
}

// IsTerminal reports whether the record has reached a final status.
func (r *StageRecord) IsTerminal() bool {
	return r.Status == StageStatusCompleted || r.Status == StageStatusFailed
}

// Start transitions the record from pending to running.
func (r *StageRecord) Start() error {
	if r.Status != StageStatusPending {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot start stage %s in %s state", r.Stage, r.Status))
	}
	r.Status = StageStatusRunning
	now := time.Now()
	r.StartedAt = &now
	return nil
}

// Complete transitions the record to completed with a final message.
func (r *StageRecord) Complete(message string) error {
	if r.Status != StageStatusRunning {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot complete stage %s in %s state", r.Stage, r.Status))
	}
	r.Status = StageStatusCompleted
	r.Progress = 100
	r.Message = message
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

// Fail transitions the record to failed with a final message. The current
// progress value is kept as-is so callers can see how far the stage got.
func (r *StageRecord) Fail(message string) error {
	if r.IsTerminal() {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot fail stage %s in %s state", r.Stage, r.Status))
	}
	r.Status = StageStatusFailed
	r.Message = message
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

// SetProgress updates progress for a running stage, clamped to 0-100.
func (r *StageRecord) SetProgress(progress int, message string) {
	if r.Status != StageStatusRunning {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	r.Progress = progress
	if message != "" {
		r.Message = message
	}
}
