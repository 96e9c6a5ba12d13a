// Package cli provides the command-line interface for LangQuest.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "langquest",
	Short: "Offline-first translation data tools",
	Long: `Offline-first translation data tools

Inspect and operate the LangQuest data directory on this device: publish
quests, drive the attachment queues, and manage migration backups.

Configuration:
  LANGQUEST_HOME          data directory (default: $XDG_DATA_HOME/langquest)
  LANGQUEST_API_URL       REST API for online queries
  LANGQUEST_STORAGE_URL   object storage for attachments
  LANGQUEST_API_TOKEN     bearer token for both`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(attachmentsCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(questsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}

// Execute runs the CLI with fang enhancements.
func Execute(ctx context.Context) error {
	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(version.Short()),
		fang.WithCommit(version.Commit),
	)
}

// loadConfig loads configuration and starts file logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := log.Init(config.GetPaths(cfg).Logs, log.ParseLevel(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}

// commandError logs err and adds a hint for the error classes an operator
// can act on.
func commandError(name string, err error) error {
	if err == nil {
		return nil
	}
	log.Errorf("[CLI] %s: %v", name, err)
	if hint := hintFor(err); hint != "" {
		return fmt.Errorf("%w\n\n%s", err, hint)
	}
	return err
}

func hintFor(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.ValidationFailed:
		return "Fix the listed problems and try again."
	case apperr.ConflictDetected:
		return "The synced copy changed since the last publish. Pull remote changes before publishing."
	case apperr.BackupFailure:
		return "Check free space in the migration_backups directory."
	case apperr.RestoreFailure:
		return "Run 'langquest backup list' to find another backup to restore."
	case apperr.NotFound:
		return "Check the id and try again."
	default:
		return ""
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
