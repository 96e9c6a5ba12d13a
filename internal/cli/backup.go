package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/backup"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hash"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage migration backups",
	Long: `Manage migration backups.

Backups hold a copy of the database file and the local store, taken
before schema migrations.

Subcommands:
  list            List backups, newest first
  create          Take a backup now
  restore <id>    Restore a backup over the live data
  delete <id>     Delete one backup
  clear           Delete all backups`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("backup list", withApp(cmd, func(ctx context.Context, a *app.App) error {
			infos, err := a.Backups.List(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(infos) == 0 {
				printf(w, "No backups.\n")
				return nil
			}
			printf(w, "%s", header(fmt.Sprintf("BACKUPS (%d)", len(infos))))
			for _, info := range infos {
				printBackup(cmd, info)
			}
			return nil
		}))
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a backup now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("backup create", withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.DB.SchemaVersion()
			if err != nil {
				return err
			}
			info, err := a.Backups.Backup(ctx, v, v)
			if info != nil {
				printBackup(cmd, info)
			}
			return err
		}))
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a backup over the live data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("backup restore", withApp(cmd, func(ctx context.Context, a *app.App) error {
			info, err := a.Backups.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if err := a.DB.Close(); err != nil {
				return fmt.Errorf("close database: %w", err)
			}
			res, restoreErr := a.Backups.Restore(ctx, info)
			if err := a.DB.Reopen(); err != nil {
				return errors.Join(restoreErr, fmt.Errorf("reopen database: %w", err))
			}
			if restoreErr != nil {
				return restoreErr
			}

			w := cmd.OutOrStdout()
			printf(w, "%s %s\n", successStyle.Render("Restored"), info.ID)
			printf(w, "  database:    %v\n", res.DatabaseRestored)
			printf(w, "  local store: %v\n", res.LocalStoreRestored)
			if res.Partial {
				printf(w, "%s\n", warnStyle.Render("  backup was partial; only the halves above were restored"))
			}
			return nil
		}))
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("backup delete", withApp(cmd, func(ctx context.Context, a *app.App) error {
			info, err := a.Backups.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.Backups.Delete(ctx, info); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Deleted %s\n", info.ID)
			return nil
		}))
	},
}

var backupClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("backup clear", withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Backups.Clear(ctx)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Deleted %d backups.\n", n)
			return nil
		}))
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupClearCmd)
}

func printBackup(cmd *cobra.Command, info *backup.Info) {
	w := cmd.OutOrStdout()
	status := successStyle.Render("complete")
	if info.Partial() {
		status = warnStyle.Render("partial")
	}
	printf(w, "  %s  v%d -> v%d  %s\n", info.ID, info.FromVersion, info.ToVersion, status)
	if info.DBChecksum != "" {
		printf(w, "    %s\n", mutedStyle.Render("db sha256 "+hash.Short(info.DBChecksum)+"  app "+info.AppVersion))
	}
	if info.DBError != "" {
		printf(w, "    %s\n", errorStyle.Render("database: "+info.DBError))
	}
	if info.LocalStoreError != "" {
		printf(w, "    %s\n", errorStyle.Render("local store: "+info.LocalStoreError))
	}
}
