package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/pkg/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show data directory status",
	Long: `Show the schema version, connectivity, row counts and attachment
queue states for this device.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("status", withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printStatus(cmd, a)
		}))
	},
}

var attachmentStates = []models.AttachmentState{
	models.StateQueuedUpload,
	models.StateUploading,
	models.StateUploaded,
	models.StateQueuedDownload,
	models.StateDownloading,
	models.StateDownloaded,
	models.StateError,
	models.StateCancelled,
}

func printStatus(cmd *cobra.Command, a *app.App) error {
	w := cmd.OutOrStdout()

	schema, err := a.DB.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	stats, err := a.DB.GetStats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	meta, err := a.DB.GetAllSyncMeta()
	if err != nil {
		return fmt.Errorf("read sync meta: %w", err)
	}

	network := successStyle.Render("online")
	if !a.Network.Online() {
		network = warnStyle.Render("offline")
	}

	printf(w, "%s", header("LANGQUEST"))
	printf(w, "  Data dir:     %s\n", a.Paths.Database)
	appVersion := version.Short()
	if version.IsDevBuild() {
		appVersion += mutedStyle.Render(" (dev build)")
	}
	printf(w, "  App:          %s\n", appVersion)
	printf(w, "  Schema:       v%d (latest v%d)\n", schema, a.Migrator.LatestVersion())
	printf(w, "  Network:      %s\n", network)
	printf(w, "  Last publish: %s\n", orNever(meta[models.SyncMetaLastPublishAt]))
	printf(w, "  Last sweep:   %s\n", orNever(meta[models.SyncMetaLastSweepAt]))
	printf(w, "\n%s", header("RECORDS"))
	printf(w, "  Quests:  %d local, %d synced\n", stats.LocalQuests, stats.SyncedQuests)
	printf(w, "  Assets:  %d local, %d synced\n", stats.LocalAssets, stats.SyncedAssets)
	printf(w, "  DB size: %d bytes\n", stats.SizeBytes)
	printf(w, "\n%s", header("ATTACHMENTS"))
	for _, s := range attachmentStates {
		n := stats.Attachments[s]
		if n == 0 {
			continue
		}
		label := string(s)
		if s == models.StateError {
			label = errorStyle.Render(label)
		}
		printf(w, "  %-16s %d\n", label, n)
	}
	return nil
}

func orNever(v string) string {
	if v == "" {
		return mutedStyle.Render("never")
	}
	return v
}
