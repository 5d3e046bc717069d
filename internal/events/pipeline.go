package events

// Event type constants.
const (
	TypeExecutionStarted   = "execution_started"
	TypeExecutionCompleted = "execution_completed"
	TypeExecutionFailed    = "execution_failed"
	TypeExecutionCancelled = "execution_cancelled"
	TypeStageProgress      = "stage_progress"
	TypeSnapshotCreated    = "snapshot_created"
)

// ExecutionStartedEvent signals that a new execution entered RUNNING.
type ExecutionStartedEvent struct {
	BaseEvent
	ProjectID string `json:"project_id"`
}

// NewExecutionStarted creates an ExecutionStartedEvent.
func NewExecutionStarted(executionID, projectID string) ExecutionStartedEvent {
	return ExecutionStartedEvent{
		BaseEvent: NewBaseEvent(TypeExecutionStarted, executionID),
		ProjectID: projectID,
	}
}

// ExecutionCompletedEvent signals a successful run with its overall score.
type ExecutionCompletedEvent struct {
	BaseEvent
	ProjectID    string  `json:"project_id"`
	OverallScore float64 `json:"overall_score"`
	RiskLevel    string  `json:"risk_level"`
}

// NewExecutionCompleted creates an ExecutionCompletedEvent.
func NewExecutionCompleted(executionID, projectID string, score float64, risk string) ExecutionCompletedEvent {
	return ExecutionCompletedEvent{
		BaseEvent:    NewBaseEvent(TypeExecutionCompleted, executionID),
		ProjectID:    projectID,
		OverallScore: score,
		RiskLevel:    risk,
	}
}

// ExecutionFailedEvent signals a failed run.
type ExecutionFailedEvent struct {
	BaseEvent
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason"`
}

// NewExecutionFailed creates an ExecutionFailedEvent.
func NewExecutionFailed(executionID, projectID, reason string) ExecutionFailedEvent {
	return ExecutionFailedEvent{
		BaseEvent: NewBaseEvent(TypeExecutionFailed, executionID),
		ProjectID: projectID,
		Reason:    reason,
	}
}

// ExecutionCancelledEvent signals a cancelled run.
type ExecutionCancelledEvent struct {
	BaseEvent
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason"`
}

// NewExecutionCancelled creates an ExecutionCancelledEvent.
func NewExecutionCancelled(executionID, projectID, reason string) ExecutionCancelledEvent {
	return ExecutionCancelledEvent{
		BaseEvent: NewBaseEvent(TypeExecutionCancelled, executionID),
		ProjectID: projectID,
		Reason:    reason,
	}
}

// StageProgressEvent carries a stage status/progress update.
type StageProgressEvent struct {
	BaseEvent
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// NewStageProgress creates a StageProgressEvent.
func NewStageProgress(executionID, stage, status string, progress int, message string) StageProgressEvent {
	return StageProgressEvent{
		BaseEvent: NewBaseEvent(TypeStageProgress, executionID),
		Stage:     stage,
		Status:    status,
		Progress:  progress,
		Message:   message,
	}
}

// SnapshotCreatedEvent signals that a snapshot was captured.
type SnapshotCreatedEvent struct {
	BaseEvent
	SnapshotID string `json:"snapshot_id"`
	ProjectID  string `json:"project_id"`
}

// NewSnapshotCreated creates a SnapshotCreatedEvent.
func NewSnapshotCreated(executionID, snapshotID, projectID string) SnapshotCreatedEvent {
	return SnapshotCreatedEvent{
		BaseEvent:  NewBaseEvent(TypeSnapshotCreated, executionID),
		SnapshotID: snapshotID,
		ProjectID:  projectID,
	}
}
