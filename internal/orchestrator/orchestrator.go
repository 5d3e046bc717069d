// Package orchestrator drives analysis executions through the fixed stage
// sequence: conflict and staleness handling on start, asynchronous stage
// execution, cancellation, and the completion handshake with the judgment
// synthesizer.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/events"
	"github.com/hugo-lorenzo-mato/codepulse/internal/judge"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
	"github.com/hugo-lorenzo-mato/codepulse/internal/validator"
)

// DefaultStalenessThreshold is the wall-clock age after which an in-flight
// execution is considered abandoned.
const DefaultStalenessThreshold = 10 * time.Minute

// Orchestrator coordinates the analysis pipeline.
type Orchestrator struct {
	executions core.ExecutionStore
	projects   core.ProjectStore
	snapshots  snapshot.Store
	registry   core.AgentConfigProvider
	runner     core.AgentRunner
	enricher   core.Enricher
	revisions  core.RevisionResolver
	judge      *judge.Synthesizer
	bus        *events.EventBus
	logger     *logging.Logger
	clock      core.Clock

	staleness       time.Duration
	parallelism     int
	agentTimeout    time.Duration
	maxRetries      int
	minConfidence   float64
	requireEvidence bool
	strictEvidence  bool

	// startMu serializes the active-run check in Start so two concurrent
	// starts for a project cannot both observe no active execution.
	startMu sync.Mutex

	mu      sync.Mutex
	cancels map[core.ExecutionID]context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock used for staleness decisions.
func WithClock(clock core.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithStalenessThreshold overrides the stale-run threshold.
func WithStalenessThreshold(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleness = d
		}
	}
}

// WithParallelism bounds concurrent agent invocations.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithAgentDefaults sets the fallback timeout and retry budget for agents
// whose registry entry carries none.
func WithAgentDefaults(timeout time.Duration, maxRetries int) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.agentTimeout = timeout
		}
		if maxRetries >= 0 {
			o.maxRetries = maxRetries
		}
	}
}

// WithEnricher installs the generative enricher used by the AI
// enhancement stage.
func WithEnricher(e core.Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithValidatorPolicy configures the per-run output validator.
func WithValidatorPolicy(minConfidence float64, requireEvidence, strict bool) Option {
	return func(o *Orchestrator) {
		o.minConfidence = minConfidence
		o.requireEvidence = requireEvidence
		o.strictEvidence = strict
	}
}

// WithRevisionResolver installs the resolver used to stamp executions
// with the project's current revision.
func WithRevisionResolver(r core.RevisionResolver) Option {
	return func(o *Orchestrator) { o.revisions = r }
}

// WithEventBus installs the event bus for progress notifications.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// New creates an orchestrator.
func New(
	executions core.ExecutionStore,
	projects core.ProjectStore,
	snapshots snapshot.Store,
	registry core.AgentConfigProvider,
	runner core.AgentRunner,
	judgeSynth *judge.Synthesizer,
	logger *logging.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		executions:    executions,
		projects:      projects,
		snapshots:     snapshots,
		registry:      registry,
		runner:        runner,
		judge:         judgeSynth,
		logger:        logger,
		clock:         core.SystemClock{},
		staleness:     DefaultStalenessThreshold,
		parallelism:   4,
		agentTimeout:  2 * time.Minute,
		maxRetries:    2,
		minConfidence: validator.DefaultMinConfidence,
		cancels:       make(map[core.ExecutionID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start begins an analysis for a project.
//
// If a healthy execution is already in flight the existing execution is
// returned together with a conflict error so the caller sees its id. A
// stale in-flight execution (older than the staleness threshold) is
// reaped as FAILED and a fresh one starts. With force set, a healthy
// in-flight execution is cancelled first.
func (o *Orchestrator) Start(ctx context.Context, projectID string, opts core.AnalysisOptions, force bool) (*core.AnalysisExecution, error) {
	project, err := o.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	revision := core.RevisionInfo{Branch: project.DefaultBranch}
	if o.revisions != nil && project.Path != "" {
		if resolved, err := o.revisions.Resolve(ctx, project.Path); err != nil {
			o.logger.Warn("revision resolution failed, using project default branch",
				"project_id", projectID, "error", err)
		} else {
			revision = resolved
		}
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	active, err := o.executions.FindActiveExecution(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		switch {
		case active.Age(o.clock.Now()) > o.staleness:
			o.logger.Warn("reaping stale execution",
				"execution_id", active.ID, "age", active.Age(o.clock.Now()).String())
			o.stopPipeline(active.ID)
			if err := active.Fail("reaped: exceeded staleness threshold"); err != nil {
				return nil, err
			}
			if err := o.executions.SaveExecution(ctx, active); err != nil {
				return nil, fmt.Errorf("persisting reaped execution: %w", err)
			}
			o.publish(events.NewExecutionFailed(string(active.ID), projectID, active.Error))
		case force:
			o.logger.Info("force restart requested, cancelling active execution",
				"execution_id", active.ID)
			o.stopPipeline(active.ID)
			if err := active.Cancel("superseded by forced restart"); err != nil {
				return nil, err
			}
			if err := o.executions.SaveExecution(ctx, active); err != nil {
				return nil, fmt.Errorf("persisting cancelled execution: %w", err)
			}
			o.publish(events.NewExecutionCancelled(string(active.ID), projectID, active.Error))
		default:
			return active, core.ErrExecutionConflict(active.ID, active.Status)
		}
	}

	exec := core.NewExecution(core.ExecutionID(uuid.NewString()), projectID, opts, revision)
	if err := exec.Start(); err != nil {
		return nil, err
	}
	if err := o.executions.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persisting new execution: %w", err)
	}
	o.publish(events.NewExecutionStarted(string(exec.ID), projectID))
	o.logger.WithExecution(string(exec.ID)).Info("execution started",
		"project_id", projectID, "force", force)

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[exec.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.stopPipeline(exec.ID)
		o.runPipeline(runCtx, exec, project)
	}()

	return exec, nil
}

// Cancel transitions an execution to CANCELLED and halts further stage
// advancement. Agent calls already in flight finish but their results are
// discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id core.ExecutionID, reason string) (*core.AnalysisExecution, error) {
	exec, err := o.executions.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := exec.Cancel(reason); err != nil {
		return nil, err
	}

	o.stopPipeline(id)

	if err := o.executions.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persisting cancelled execution: %w", err)
	}
	o.publish(events.NewExecutionCancelled(string(id), exec.ProjectID, reason))
	o.logger.WithExecution(string(id)).Info("execution cancelled", "reason", reason)
	return exec, nil
}

// Status returns the execution with its ordered stage records.
func (o *Orchestrator) Status(ctx context.Context, id core.ExecutionID) (*core.AnalysisExecution, error) {
	return o.executions.GetExecution(ctx, id)
}

// List returns a project's executions, newest first.
func (o *Orchestrator) List(ctx context.Context, projectID string, limit int) ([]*core.AnalysisExecution, error) {
	return o.executions.ListExecutions(ctx, projectID, limit)
}

// CaptureSnapshot persists an immutable snapshot of a completed
// execution's findings.
func (o *Orchestrator) CaptureSnapshot(ctx context.Context, id core.ExecutionID) (*snapshot.SnapshotMeta, error) {
	exec, err := o.executions.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status != core.ExecutionStatusCompleted {
		return nil, core.ErrState(core.CodeInvalidState,
			fmt.Sprintf("cannot snapshot execution in %s state", exec.Status))
	}
	findings, err := o.executions.GetFindings(ctx, id)
	if err != nil {
		return nil, err
	}

	score := 0.0
	if exec.OverallScore != nil {
		score = *exec.OverallScore
	}
	meta, err := o.snapshots.Create(ctx, snapshot.CreateParams{
		ProjectID:   exec.ProjectID,
		ExecutionID: exec.ID,
		Revision:    exec.Revision,
		Config:      snapshotConfig(exec.Options),
		Findings:    findings,
		Score:       score,
	})
	if err != nil {
		return nil, err
	}
	o.publish(events.NewSnapshotCreated(string(id), meta.ID, exec.ProjectID))
	return meta, nil
}

// Shutdown waits for in-flight pipelines to finish after cancelling them.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// stopPipeline cancels and forgets the run context of an execution.
func (o *Orchestrator) stopPipeline(id core.ExecutionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
}

func (o *Orchestrator) publish(event events.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

func snapshotConfig(opts core.AnalysisOptions) map[string]string {
	return map[string]string{
		"enable_ai":     fmt.Sprintf("%t", opts.EnableAI),
		"deep_scan":     fmt.Sprintf("%t", opts.DeepScan),
		"include_tests": fmt.Sprintf("%t", opts.IncludeTests),
	}
}
