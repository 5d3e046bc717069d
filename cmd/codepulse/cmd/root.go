// Package cmd implements the codepulse command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/codepulse/internal/config"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string

	// vip is the viper instance shared between flag bindings and the
	// config loader.
	vip = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "codepulse",
	Short: "Code-health analysis pipeline",
	Long: `codepulse runs a staged code-health analysis pipeline: source
collection, language detection, static analysis agents, finding
normalization, optional AI enrichment, and judgment synthesis. Results
can be captured as immutable snapshots and compared over time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// SetVersion injects build-time version info.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .codepulse/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")

	_ = vip.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = vip.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig loads the effective configuration honoring flags, env, and
// config files.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(vip)
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	return loader.Load()
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
