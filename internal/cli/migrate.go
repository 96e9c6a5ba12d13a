package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	Long: `Apply pending schema migrations.

Each run takes a backup of the database and local store first. If a step
fails, the backup is restored and kept in migration_backups/.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening the app runs pending migrations.
		return commandError("migrate", withApp(cmd, func(ctx context.Context, a *app.App) error {
			w := cmd.OutOrStdout()
			res := a.Migration
			if res.Applied == 0 {
				printf(w, "Schema is up to date (v%d).\n", res.ToVersion)
				return nil
			}
			printf(w, "%s v%d -> v%d (%d steps)\n", successStyle.Render("Migrated"), res.FromVersion, res.ToVersion, res.Applied)
			return nil
		}))
	},
}
