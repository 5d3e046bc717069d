package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

var (
	statusProject string
	statusLimit   int
)

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show execution status",
	Long: `Without arguments, lists recent executions of the project. With an
execution id, shows the execution's stage records.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "project id (default: directory name)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of executions to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx := cmd.Context()

	if len(args) == 1 {
		exec, err := app.store.GetExecution(ctx, core.ExecutionID(args[0]))
		if err != nil {
			return err
		}
		printExecution(exec)
		return nil
	}

	projectID := statusProject
	if projectID == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		projectID = filepath.Base(cwd)
	}

	execs, err := app.store.ListExecutions(ctx, projectID, statusLimit)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Printf("No executions for project %s.\n", projectID)
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-8s  %s\n", "EXECUTION", "STATUS", "SCORE", "CREATED")
	for _, exec := range execs {
		score := "-"
		if exec.OverallScore != nil {
			score = fmt.Sprintf("%.1f", *exec.OverallScore)
		}
		fmt.Printf("%-36s  %-10s  %-8s  %s\n",
			exec.ID, exec.Status, score, exec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printExecution(exec *core.AnalysisExecution) {
	fmt.Printf("Execution:  %s\n", exec.ID)
	fmt.Printf("Project:    %s\n", exec.ProjectID)
	fmt.Printf("Status:     %s\n", exec.Status)
	if exec.OverallScore != nil {
		fmt.Printf("Score:      %.1f/100\n", *exec.OverallScore)
	}
	if exec.Error != "" {
		fmt.Printf("Error:      %s\n", exec.Error)
	}

	fmt.Println("\nStages:")
	for _, rec := range exec.Stages {
		fmt.Printf("  %-20s %-10s %3d%%  %s\n",
			rec.Stage.String(), rec.Status, rec.Progress, rec.Message)
	}
}
