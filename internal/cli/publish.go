package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hash"
)

var publishCmd = &cobra.Command{
	Use:   "publish <quest-id>",
	Short: "Publish a local quest to the synced tables",
	Long: `Publish a local quest, its assets and their attachment references to
the synced tables in one transaction.

Publishing fails without writing anything when an attachment has not
finished uploading, and when the synced copy changed since this device
last published it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("publish", withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec, err := a.Publisher.Publish(ctx, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if rec.NoOp {
				printf(w, "%s is already published (%s).\n", rec.ID, hash.Short(rec.Hash))
				return nil
			}
			printf(w, "%s %s\n", successStyle.Render("Published"), rec.ID)
			printf(w, "  assets:      %d\n", rec.AssetCount)
			printf(w, "  attachments: %d\n", rec.AttachmentCount)
			printf(w, "  hash:        %s\n", hash.Short(rec.Hash))
			return nil
		}))
	},
}
