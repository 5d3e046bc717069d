package core

import (
	"fmt"
	"time"
)

// ExecutionID uniquely identifies an analysis execution.
type ExecutionID string

// ExecutionStatus represents the current state of an analysis execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// RevisionInfo identifies the code revision an execution ran against.
type RevisionInfo struct {
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// AnalysisOptions is the options bag accepted when starting an analysis.
type AnalysisOptions struct {
	EnableAI     bool       `json:"enable_ai"`
	DeepScan     bool       `json:"deep_scan"`
	IncludeTests bool       `json:"include_tests"`
	Mode         string     `json:"mode,omitempty"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// AnalysisExecution is one run of the pipeline against one project revision.
// It is mutated only by the orchestrator and the judgment synthesizer.
type AnalysisExecution struct {
	ID             ExecutionID      `json:"id"`
	ProjectID      string           `json:"project_id"`
	Status         ExecutionStatus  `json:"status"`
	Options        AnalysisOptions  `json:"options"`
	Revision       RevisionInfo     `json:"revision"`
	Stages         []*StageRecord   `json:"stages"`
	OverallScore   *float64         `json:"overall_score,omitempty"`
	SeverityCounts map[Severity]int `json:"severity_counts,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// NewExecution creates a pending execution with one pending StageRecord per
// stage in the fixed order.
func NewExecution(id ExecutionID, projectID string, opts AnalysisOptions, rev RevisionInfo) *AnalysisExecution {
	stages := make([]*StageRecord, 0, len(AllStages()))
	for _, s := range AllStages() {
		stages = append(stages, NewStageRecord(s))
	}
	return &AnalysisExecution{
		ID:        id,
		ProjectID: projectID,
		Status:    ExecutionStatusPending,
		Options:   opts,
		Revision:  rev,
		Stages:    stages,
		CreatedAt: time.Now(),
	}
}

// StageRecord returns the record for the given stage, or nil when absent.
func (e *AnalysisExecution) StageRecord(stage Stage) *StageRecord {
	for _, r := range e.Stages {
		if r.Stage == stage {
			return r
		}
	}
	return nil
}

// IsActive reports whether the execution is pending or running.
func (e *AnalysisExecution) IsActive() bool {
	return e.Status == ExecutionStatusPending || e.Status == ExecutionStatusRunning
}

// IsTerminal reports whether the execution has reached a final status.
func (e *AnalysisExecution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted ||
		e.Status == ExecutionStatusFailed ||
		e.Status == ExecutionStatusCancelled
}

// Start transitions the execution to RUNNING.
func (e *AnalysisExecution) Start() error {
	if e.Status != ExecutionStatusPending {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot start execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusRunning
	now := time.Now()
	e.StartedAt = &now
	return nil
}

// Complete transitions the execution to COMPLETED with the synthesized
// overall score. The score is mandatory: an execution never completes
// without one.
func (e *AnalysisExecution) Complete(score float64) error {
	if e.Status != ExecutionStatusRunning {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot complete execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusCompleted
	e.OverallScore = &score
	now := time.Now()
	e.CompletedAt = &now
	return nil
}

// Fail transitions the execution to FAILED. Permitted from any non-terminal
// state so stuck runs can always be moved out of flight.
func (e *AnalysisExecution) Fail(reason string) error {
	if e.IsTerminal() {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot fail execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusFailed
	e.Error = reason
	now := time.Now()
	e.CompletedAt = &now
	return nil
}

// Cancel transitions the execution to CANCELLED.
func (e *AnalysisExecution) Cancel(reason string) error {
	if e.IsTerminal() {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot cancel execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusCancelled
	e.Error = reason
	now := time.Now()
	e.CompletedAt = &now
	return nil
}

// Age returns how long ago the execution started, falling back to creation
// time when it never left PENDING. Used for wall-clock staleness checks.
func (e *AnalysisExecution) Age(now time.Time) time.Duration {
	ref := e.CreatedAt
	if e.StartedAt != nil {
		ref = *e.StartedAt
	}
	return now.Sub(ref)
}

// Duration returns the execution runtime so far, or total runtime once done.
func (e *AnalysisExecution) Duration() time.Duration {
	if e.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if e.CompletedAt != nil {
		end = *e.CompletedAt
	}
	return end.Sub(*e.StartedAt)
}

// Progress returns overall completion as the mean of stage progress.
func (e *AnalysisExecution) Progress() float64 {
	if len(e.Stages) == 0 {
		return 0
	}
	total := 0
	for _, r := range e.Stages {
		total += r.Progress
	}
	return float64(total) / float64(len(e.Stages))
}

// Project is the minimal project record the pipeline needs from the
// project store.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
