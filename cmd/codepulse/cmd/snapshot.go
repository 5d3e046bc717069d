package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
)

var (
	snapshotProject string
	snapshotLimit   int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage analysis snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots of a project, newest first",
	RunE:  runSnapshotList,
}

var snapshotCaptureCmd = &cobra.Command{
	Use:   "capture <execution-id>",
	Short: "Capture a snapshot of a completed execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotCapture,
}

var snapshotCompareCmd = &cobra.Command{
	Use:   "compare <base-id> <target-id>",
	Short: "Diff two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotCompare,
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify <snapshot-id>",
	Short: "Check a snapshot's integrity checksum",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotVerify,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <output.tar.gz>",
	Short: "Export a project's snapshots to an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotExport,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <input.tar.gz>",
	Short: "Restore snapshots from an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotImport,
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotProject, "project", "",
		"project id (default: directory name)")
	snapshotListCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "number of snapshots to list")
	snapshotCmd.AddCommand(snapshotListCmd, snapshotCaptureCmd, snapshotCompareCmd,
		snapshotVerifyCmd, snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func snapshotApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, newLogger(cfg))
}

func resolveProjectID() (string, error) {
	if snapshotProject != "" {
		return snapshotProject, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Base(cwd), nil
}

func runSnapshotList(cmd *cobra.Command, _ []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	projectID, err := resolveProjectID()
	if err != nil {
		return err
	}

	metas, err := app.snaps.List(cmd.Context(), projectID, snapshotLimit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Printf("No snapshots for project %s.\n", projectID)
		return nil
	}

	fmt.Printf("%-36s  %-36s  %-8s  %s\n", "SNAPSHOT", "EXECUTION", "SCORE", "CREATED")
	for _, meta := range metas {
		fmt.Printf("%-36s  %-36s  %-8.1f  %s\n",
			meta.ID, meta.ExecutionID, meta.Stats.OverallScore,
			meta.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runSnapshotCapture(cmd *cobra.Command, args []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	meta, err := app.orch.CaptureSnapshot(cmd.Context(), core.ExecutionID(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("snapshot %s captured (%d findings, checksum %s)\n",
		meta.ID, meta.Stats.TotalFindings, shortCommit(meta.Checksum))
	return nil
}

func runSnapshotCompare(cmd *cobra.Command, args []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	result, err := snapshot.Compare(cmd.Context(), app.snaps, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Base:    %s\nTarget:  %s\n\n", result.BaseID, result.TargetID)
	fmt.Printf("Added:      %d\n", len(result.Added))
	fmt.Printf("Removed:    %d\n", len(result.Removed))
	fmt.Printf("Changed:    %d\n", len(result.Changed))
	fmt.Printf("Unchanged:  %d\n", result.Unchanged)
	fmt.Printf("Net change: %+d\n", result.Summary.NetChange)
	if result.Summary.CriticalIntroduced > 0 {
		fmt.Printf("Critical findings introduced: %d\n", result.Summary.CriticalIntroduced)
	}
	if result.Summary.CriticalResolved > 0 {
		fmt.Printf("Critical findings resolved: %d\n", result.Summary.CriticalResolved)
	}

	for _, change := range result.Changed {
		fmt.Printf("\n  ~ %s (%v)\n", change.Fingerprint, change.Changes)
	}
	return nil
}

func runSnapshotVerify(cmd *cobra.Command, args []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	ok, err := app.snaps.Verify(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %s failed integrity verification", args[0])
	}
	fmt.Printf("snapshot %s verified\n", args[0])
	return nil
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	projectID, err := resolveProjectID()
	if err != nil {
		return err
	}

	manifest, err := snapshot.ExportArchive(cmd.Context(), app.snaps, projectID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("exported %d snapshots to %s\n", manifest.SnapshotCount, args[0])
	return nil
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	app, err := snapshotApp()
	if err != nil {
		return err
	}
	defer app.close()

	manifest, restored, err := snapshot.ImportArchive(cmd.Context(), app.snaps, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("restored %d of %d snapshots from %s\n",
		restored, manifest.SnapshotCount, args[0])
	return nil
}
