package orchestrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/events"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
	"github.com/hugo-lorenzo-mato/codepulse/internal/merger"
	"github.com/hugo-lorenzo-mato/codepulse/internal/validator"
)

// maxEnrichedFindings caps how many findings the AI enhancement stage
// sends to the enricher per run.
const maxEnrichedFindings = 10

// pipelineRun carries mutable state across the stages of one execution.
type pipelineRun struct {
	exec    *core.AnalysisExecution
	project *core.Project
	logger  *logging.Logger
	raw     []core.RawFinding
	merged  []core.NormalizedFinding
}

// runPipeline advances the execution through the fixed stage sequence.
// Each stage is a synchronization point: the next stage starts only after
// the previous one fully reported.
func (o *Orchestrator) runPipeline(ctx context.Context, exec *core.AnalysisExecution, project *core.Project) {
	run := &pipelineRun{
		exec:    exec,
		project: project,
		logger:  o.logger.WithExecution(string(exec.ID)),
	}

	stageFuncs := map[core.Stage]func(context.Context, *pipelineRun) error{
		core.StageSourceCollection:  o.stageSourceCollection,
		core.StageLanguageDetection: o.stageLanguageDetection,
		core.StageASTParsing:        o.stageASTParsing,
		core.StageStaticAnalysis:    o.stageStaticAnalysis,
		core.StageRuleParsing:       o.stageRuleParsing,
		core.StageCategorization:    o.stageCategorization,
		core.StageNormalization:     o.stageNormalization,
		core.StageAIEnhancement:     o.stageAIEnhancement,
	}

	for _, stage := range core.AllStages() {
		if ctx.Err() != nil {
			// Cancelled: the execution record was already transitioned by
			// Cancel; in-flight results are discarded.
			run.logger.Info("pipeline halted", "stage", stage.String())
			return
		}
		if err := o.runStage(ctx, run, stage, stageFuncs[stage]); err != nil {
			if !stage.Required() {
				run.logger.Warn("best-effort stage failed, continuing with deterministic findings",
					"stage", stage.String(), "error", err)
				continue
			}
			o.failExecution(ctx, run, fmt.Sprintf("stage %s failed: %v", stage, err))
			return
		}
	}

	o.completeExecution(ctx, run)
}

// runStage flips the stage record to running, executes fn, and records the
// terminal status. Stage statuses are monotonic.
func (o *Orchestrator) runStage(ctx context.Context, run *pipelineRun, stage core.Stage, fn func(context.Context, *pipelineRun) error) error {
	rec := run.exec.StageRecord(stage)
	if rec == nil {
		return core.ErrInternal(core.CodeStateCorrupted,
			fmt.Sprintf("execution has no record for stage %s", stage))
	}

	if err := rec.Start(); err != nil {
		return err
	}
	o.saveProgress(ctx, run, rec)

	if err := fn(ctx, run); err != nil {
		_ = rec.Fail(err.Error())
		o.saveProgress(ctx, run, rec)
		return err
	}

	if err := rec.Complete(rec.Message); err != nil {
		return err
	}
	o.saveProgress(ctx, run, rec)
	return nil
}

// saveProgress persists the execution and publishes a progress event.
// Persistence failures here are logged, not fatal: progress reporting must
// not take the pipeline down.
func (o *Orchestrator) saveProgress(ctx context.Context, run *pipelineRun, rec *core.StageRecord) {
	if ctx.Err() != nil {
		return
	}
	if err := o.executions.SaveExecution(ctx, run.exec); err != nil {
		run.logger.Warn("persisting stage progress failed", "stage", rec.Stage.String(), "error", err)
	}
	o.publish(events.NewStageProgress(string(run.exec.ID),
		rec.Stage.String(), string(rec.Status), rec.Progress, rec.Message))
}

func (o *Orchestrator) failExecution(ctx context.Context, run *pipelineRun, reason string) {
	if ctx.Err() != nil {
		return
	}
	if err := run.exec.Fail(reason); err != nil {
		run.logger.Warn("marking execution failed", "error", err)
		return
	}
	if err := o.executions.SaveExecution(ctx, run.exec); err != nil {
		run.logger.Error("persisting failed execution", "error", err)
	}
	o.publish(events.NewExecutionFailed(string(run.exec.ID), run.exec.ProjectID, reason))
	run.logger.Error("execution failed", "reason", reason)
}

// completeExecution synthesizes the judgment and closes out the run. The
// score is mandatory: completing without one is a fatal internal error.
// A cancelled run never completes: Cancel already transitioned the record.
func (o *Orchestrator) completeExecution(ctx context.Context, run *pipelineRun) {
	if ctx.Err() != nil {
		run.logger.Info("completion skipped, run cancelled")
		return
	}
	judgment := o.judge.Synthesize(ctx, run.exec, run.merged)
	if judgment == nil {
		o.failExecution(ctx, run, core.ErrInternal(core.CodeMissingScore,
			"judgment synthesizer produced no score").Error())
		return
	}

	run.exec.SeverityCounts = core.CountBySeverity(run.merged)
	if err := run.exec.Complete(judgment.OverallScore); err != nil {
		o.failExecution(ctx, run, fmt.Sprintf("completing execution: %v", err))
		return
	}
	if err := o.executions.SaveExecution(ctx, run.exec); err != nil {
		run.logger.Error("persisting completed execution", "error", err)
		return
	}
	o.publish(events.NewExecutionCompleted(string(run.exec.ID), run.exec.ProjectID,
		judgment.OverallScore, string(judgment.RiskLevel)))
	run.logger.Info("execution completed",
		"score", judgment.OverallScore, "risk", string(judgment.RiskLevel),
		"findings", len(run.merged))
}

// --- stages ---

func (o *Orchestrator) stageSourceCollection(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageSourceCollection)
	if run.project.Path != "" {
		info, err := os.Stat(run.project.Path)
		if err != nil {
			return fmt.Errorf("project path unavailable: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("project path is not a directory: %s", run.project.Path)
		}
	}
	rec.SetProgress(100, "sources collected")
	return nil
}

func (o *Orchestrator) stageLanguageDetection(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageLanguageDetection)
	if run.project.Path == "" {
		rec.SetProgress(100, "no local sources, skipping detection")
		return nil
	}

	counts := map[string]int{}
	visited := 0
	err := filepath.WalkDir(run.project.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != run.project.Path {
				return filepath.SkipDir
			}
			return nil
		}
		visited++
		if visited > 20000 {
			return filepath.SkipAll
		}
		if ext := strings.TrimPrefix(filepath.Ext(d.Name()), "."); ext != "" {
			counts[ext]++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning sources: %w", err)
	}

	rec.SetProgress(100, fmt.Sprintf("detected %s", summarizeLanguages(counts)))
	return nil
}

func (o *Orchestrator) stageASTParsing(ctx context.Context, run *pipelineRun) error {
	// Parsing is performed inside the analysis agents; this stage marks
	// the handoff boundary.
	run.exec.StageRecord(core.StageASTParsing).SetProgress(100, "parsing delegated to analysis agents")
	return nil
}

// stageStaticAnalysis fans out the enabled agents, bounded by the
// configured parallelism. The stage boundary is a synchronization point:
// it returns only after every agent reported or failed.
func (o *Orchestrator) stageStaticAnalysis(ctx context.Context, run *pipelineRun) error {
	agents, err := o.registry.Agents(ctx)
	if err != nil {
		return fmt.Errorf("loading agent registry: %w", err)
	}
	agents = core.EnabledAgents(agents)
	if len(agents) == 0 {
		return core.ErrExecution(core.CodeAgentUnavailable, "no enabled analysis agents")
	}

	rec := run.exec.StageRecord(core.StageStaticAnalysis)
	req := core.AnalysisRequest{
		ProjectID:    run.project.ID,
		ProjectPath:  run.project.Path,
		Revision:     run.exec.Revision,
		DeepScan:     run.exec.Options.DeepScan,
		IncludeTests: run.exec.Options.IncludeTests,
	}

	var (
		mu        sync.Mutex
		collected []core.RawFinding
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for _, agent := range agents {
		agent := agent
		g.Go(func() error {
			findings, err := o.runAgent(gctx, agent, req, run)
			if err != nil {
				return fmt.Errorf("agent %s: %w", agent.Name, err)
			}
			// The stage record and the persisted execution are shared across
			// agent goroutines; updates stay under the lock so progress
			// writes and saves are strictly ordered.
			mu.Lock()
			collected = append(collected, findings...)
			completed++
			rec.SetProgress(completed*100/len(agents),
				fmt.Sprintf("%d/%d agents reported", completed, len(agents)))
			o.saveProgress(gctx, run, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	run.raw = collected
	rec.SetProgress(100, fmt.Sprintf("%d agents produced %d raw findings", len(agents), len(collected)))
	return nil
}

// runAgent invokes one agent with its configured timeout and retry budget.
func (o *Orchestrator) runAgent(ctx context.Context, agent core.AgentConfig, req core.AnalysisRequest, run *pipelineRun) ([]core.RawFinding, error) {
	timeout := agent.Timeout
	if timeout <= 0 {
		timeout = o.agentTimeout
	}
	policy := DefaultRetryPolicy()
	if agent.MaxRetries > 0 {
		policy.MaxRetries = agent.MaxRetries
	} else {
		policy.MaxRetries = o.maxRetries
	}

	var findings []core.RawFinding
	err := policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := o.runner.Run(callCtx, agent, req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return core.ErrTimeout(fmt.Sprintf("agent %s exceeded %s", agent.Name, timeout))
			}
			return err
		}
		findings = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range findings {
		findings[i].Agent = agent.Name
	}
	run.logger.WithAgent(agent.Name).Debug("agent reported", "findings", len(findings))
	return findings, nil
}

func (o *Orchestrator) stageRuleParsing(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageRuleParsing)
	missing := 0
	for i := range run.raw {
		if strings.TrimSpace(run.raw[i].RuleID) == "" {
			// Findings without a rule id get a synthetic one derived from
			// the agent, so fingerprints stay stable.
			run.raw[i].RuleID = run.raw[i].Agent + "/unclassified"
			missing++
		}
	}
	rec.SetProgress(100, fmt.Sprintf("resolved %d rules (%d synthesized)", len(run.raw), missing))
	return nil
}

func (o *Orchestrator) stageCategorization(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageCategorization)
	counts := map[core.Category]int{}
	for _, f := range run.raw {
		counts[core.NormalizeCategory(f.Category)]++
	}
	rec.SetProgress(100, fmt.Sprintf("categorized %d findings across %d categories", len(run.raw), len(counts)))
	return nil
}

func (o *Orchestrator) stageNormalization(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageNormalization)
	run.merged = merger.Normalize(run.raw)
	if err := o.executions.SaveFindings(ctx, run.exec.ID, run.merged); err != nil {
		return fmt.Errorf("persisting normalized findings: %w", err)
	}
	rec.SetProgress(100, fmt.Sprintf("%d raw findings merged into %d", len(run.raw), len(run.merged)))
	return nil
}

// stageAIEnhancement enriches the most severe findings with validated
// generative explanations. The validator instance is scoped to this run.
func (o *Orchestrator) stageAIEnhancement(ctx context.Context, run *pipelineRun) error {
	rec := run.exec.StageRecord(core.StageAIEnhancement)
	if !run.exec.Options.EnableAI || o.enricher == nil {
		rec.SetProgress(100, "AI enhancement disabled")
		return nil
	}
	if len(run.merged) == 0 {
		rec.SetProgress(100, "no findings to enrich")
		return nil
	}

	v := validator.New(
		validator.WithMinConfidence(o.minConfidence),
		validator.WithEvidencePolicy(o.requireEvidence, o.strictEvidence),
	)

	candidates := make([]int, 0, len(run.merged))
	for i := range run.merged {
		candidates = append(candidates, i)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return run.merged[candidates[a]].Severity.Rank() < run.merged[candidates[b]].Severity.Rank()
	})
	if len(candidates) > maxEnrichedFindings {
		candidates = candidates[:maxEnrichedFindings]
	}

	enriched, rejected := 0, 0
	for done, idx := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		explanation, err := o.enricher.Explain(ctx, run.merged[idx])
		if err != nil {
			return fmt.Errorf("enriching %s: %w", run.merged[idx].Fingerprint(), err)
		}
		result := v.ValidateExplanation(*explanation)
		if !result.Success {
			rejected++
			run.logger.Debug("enrichment rejected",
				"fingerprint", run.merged[idx].Fingerprint(), "reason", result.Error)
			continue
		}
		for _, warning := range result.Warnings {
			run.logger.Debug("enrichment warning",
				"fingerprint", run.merged[idx].Fingerprint(), "warning", warning)
		}
		run.merged[idx].Explanation = explanation.Text
		enriched++
		rec.SetProgress((done+1)*100/len(candidates), "enriching findings")
	}

	if enriched > 0 {
		if err := o.executions.SaveFindings(ctx, run.exec.ID, run.merged); err != nil {
			return fmt.Errorf("persisting enriched findings: %w", err)
		}
	}
	rec.SetProgress(100, fmt.Sprintf("%d findings enriched, %d rejected by validator", enriched, rejected))
	return nil
}

func summarizeLanguages(counts map[string]int) string {
	if len(counts) == 0 {
		return "no source files"
	}
	type langCount struct {
		ext string
		n   int
	}
	langs := make([]langCount, 0, len(counts))
	for ext, n := range counts {
		langs = append(langs, langCount{ext, n})
	}
	sort.Slice(langs, func(i, j int) bool {
		if langs[i].n != langs[j].n {
			return langs[i].n > langs[j].n
		}
		return langs[i].ext < langs[j].ext
	})
	if len(langs) > 3 {
		langs = langs[:3]
	}
	parts := make([]string, 0, len(langs))
	for _, lc := range langs {
		parts = append(parts, fmt.Sprintf("%s (%d files)", lc.ext, lc.n))
	}
	return strings.Join(parts, ", ")
}
