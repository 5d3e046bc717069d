// Package core defines the domain model and ports of the analysis pipeline.
package core

import (
	"context"
	"time"
)

// ExecutionStore persists analysis executions with their stage records and
// normalized findings.
type ExecutionStore interface {
	// SaveExecution upserts the execution, its stage records, and its
	// finding set atomically.
	SaveExecution(ctx context.Context, exec *AnalysisExecution) error

	// GetExecution returns an execution by id, or a NOT_FOUND domain error.
	GetExecution(ctx context.Context, id ExecutionID) (*AnalysisExecution, error)

	// ListExecutions returns executions for a project, newest first.
	ListExecutions(ctx context.Context, projectID string, limit int) ([]*AnalysisExecution, error)

	// FindActiveExecution returns the project's PENDING or RUNNING
	// execution, or nil when none is in flight.
	FindActiveExecution(ctx context.Context, projectID string) (*AnalysisExecution, error)

	// SaveFindings stores the normalized finding set of an execution.
	SaveFindings(ctx context.Context, id ExecutionID, findings []NormalizedFinding) error

	// GetFindings returns the normalized finding set of an execution.
	GetFindings(ctx context.Context, id ExecutionID) ([]NormalizedFinding, error)
}

// ProjectStore resolves project metadata. Project CRUD is a collaborator
// concern; the pipeline only reads.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
}

// AnalysisRequest is the input handed to an analysis agent.
type AnalysisRequest struct {
	ProjectID    string
	ProjectPath  string
	Revision     RevisionInfo
	DeepScan     bool
	IncludeTests bool
}

// AgentRunner invokes one analysis agent and returns its raw findings.
// Implementations live outside the core pipeline; the orchestrator bounds
// each call with the agent's configured timeout.
type AgentRunner interface {
	Run(ctx context.Context, agent AgentConfig, req AnalysisRequest) ([]RawFinding, error)
}

// AgentConfigProvider supplies the current agent registry entries.
type AgentConfigProvider interface {
	Agents(ctx context.Context) ([]AgentConfig, error)
}

// Enricher produces generative finding enrichments. All output must pass
// the output validator before it is trusted.
type Enricher interface {
	Explain(ctx context.Context, finding NormalizedFinding) (*Explanation, error)
}

// SummaryInput is what the summarizer gets to work with.
type SummaryInput struct {
	ProjectID      string
	OverallScore   float64
	CategoryScores map[Category]float64
	SeverityCounts map[Severity]int
	RiskLevel      RiskLevel
}

// Summarizer produces the judgment's summary text and recommendations.
// On failure the synthesizer falls back to a deterministic heuristic.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (summary string, recommendations []string, err error)
}

// RevisionResolver reports the code revision of a project tree. Failure
// to resolve is not fatal to an analysis; callers fall back to the
// project's default branch.
type RevisionResolver interface {
	Resolve(ctx context.Context, projectPath string) (RevisionInfo, error)
}

// Clock abstracts wall-clock time for staleness decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
