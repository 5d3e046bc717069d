package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/events"
)

var (
	analyzeDeepScan     bool
	analyzeIncludeTests bool
	analyzeEnableAI     bool
	analyzeForce        bool
	analyzeSnapshot     bool
	analyzeOutput       string
	analyzeProject      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Run the analysis pipeline against a source tree",
	Long: `Runs the full analysis pipeline against the given path (default:
current directory) and prints the judgment. The run is registered in the
configured state store, so status and snapshot commands can refer to it
afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDeepScan, "deep-scan", false, "scan more files per agent")
	analyzeCmd.Flags().BoolVar(&analyzeIncludeTests, "include-tests", false, "analyze test files too")
	analyzeCmd.Flags().BoolVar(&analyzeEnableAI, "enable-ai", false, "run the AI enhancement stage")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "cancel an in-flight analysis for the project first")
	analyzeCmd.Flags().BoolVar(&analyzeSnapshot, "snapshot", false, "capture a snapshot on success")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "text", "output format (text, json)")
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "", "project id (default: directory name)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absPath)
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	projectID := analyzeProject
	if projectID == "" {
		projectID = filepath.Base(absPath)
	}
	if err := ensureProject(ctx, app, projectID, absPath); err != nil {
		return err
	}

	opts := core.AnalysisOptions{
		EnableAI:     analyzeEnableAI || cfg.Pipeline.EnableAI,
		DeepScan:     analyzeDeepScan,
		IncludeTests: analyzeIncludeTests,
	}

	progress := app.bus.Subscribe(events.TypeStageProgress)
	defer app.bus.Unsubscribe(progress)
	if analyzeOutput == "text" {
		go printProgress(progress)
	}

	exec, err := app.orch.Start(ctx, projectID, opts, analyzeForce)
	if err != nil {
		return err
	}

	final, err := waitForExecution(ctx, app, exec.ID)
	if err != nil {
		return err
	}

	findings, err := app.store.GetFindings(ctx, final.ID)
	if err != nil {
		return err
	}

	if analyzeSnapshot && final.Status == core.ExecutionStatusCompleted {
		meta, err := app.orch.CaptureSnapshot(ctx, final.ID)
		if err != nil {
			logger.Warn("snapshot capture failed", "error", err)
		} else if analyzeOutput == "text" {
			fmt.Printf("snapshot captured: %s\n", meta.ID)
		}
	}

	if analyzeOutput == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"execution": final,
			"findings":  findings,
		})
	}

	printReport(final, findings)
	if final.Status != core.ExecutionStatusCompleted {
		return fmt.Errorf("analysis %s: %s", final.Status, final.Error)
	}
	return nil
}

func ensureProject(ctx context.Context, app *app, projectID, path string) error {
	if _, err := app.store.GetProject(ctx, projectID); err == nil {
		return nil
	} else if !core.IsCategory(err, core.ErrCatNotFound) {
		return err
	}
	return app.store.SaveProject(ctx, &core.Project{
		ID:        projectID,
		Name:      projectID,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	})
}

func waitForExecution(ctx context.Context, app *app, id core.ExecutionID) (*core.AnalysisExecution, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		exec, err := app.orch.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if exec.IsTerminal() {
			return exec, nil
		}
		select {
		case <-ctx.Done():
			_, cancelErr := app.orch.Cancel(context.Background(), id, "interrupted")
			if cancelErr != nil {
				return nil, ctx.Err()
			}
			return app.orch.Status(context.Background(), id)
		case <-ticker.C:
		}
	}
}

func printProgress(ch <-chan events.Event) {
	for event := range ch {
		sp, ok := event.(events.StageProgressEvent)
		if !ok || sp.Status != "completed" {
			continue
		}
		fmt.Printf("  %-20s %s\n", sp.Stage, sp.Message)
	}
}

func printReport(exec *core.AnalysisExecution, findings []core.NormalizedFinding) {
	fmt.Println()
	fmt.Printf("Execution:  %s\n", exec.ID)
	fmt.Printf("Status:     %s\n", exec.Status)
	if exec.OverallScore != nil {
		fmt.Printf("Score:      %.1f/100\n", *exec.OverallScore)
	}
	if exec.Revision.Commit != "" {
		fmt.Printf("Revision:   %s @ %s\n", exec.Revision.Branch, shortCommit(exec.Revision.Commit))
	}

	if len(findings) == 0 {
		fmt.Println("\nNo findings.")
		return
	}

	bySeverity := map[core.Severity][]core.NormalizedFinding{}
	for _, f := range findings {
		bySeverity[f.Severity] = append(bySeverity[f.Severity], f)
	}

	fmt.Printf("\nFindings (%d):\n", len(findings))
	for _, sev := range []core.Severity{core.SeverityCritical, core.SeverityHigh,
		core.SeverityMedium, core.SeverityLow, core.SeverityInfo} {
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].FilePath != group[j].FilePath {
				return group[i].FilePath < group[j].FilePath
			}
			return group[i].LineStart < group[j].LineStart
		})
		fmt.Printf("\n  %s (%d)\n", sev, len(group))
		for _, f := range group {
			fmt.Printf("    %s:%d  [%s] %s\n", f.FilePath, f.LineStart, f.RuleID, f.Message)
			if f.Explanation != "" {
				fmt.Printf("      %s\n", f.Explanation)
			}
		}
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
