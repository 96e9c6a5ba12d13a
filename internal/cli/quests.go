package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hybrid"
	"github.com/genesis-ai-dev/langquest-sub009/internal/localstore"
)

var questsCmd = &cobra.Command{
	Use:   "quests [project-id]",
	Short: "List the quests of a project",
	Long: `List the quests of a project.

Online, quests come from the LangQuest API. Offline, they come from this
device, with local drafts shown in place of their synced copies. Without a
project id, the last project used is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("quests", withApp(cmd, func(ctx context.Context, a *app.App) error {
			projectID := a.LocalStore.GetString(localstore.KeyLastProjectID)
			if len(args) == 1 {
				projectID = args[0]
			}
			if projectID == "" {
				return errors.New("no project id given and no last project recorded")
			}

			s, err := hybrid.Fetch(ctx, a.Query, a.QuestsQuery(projectID))
			if err != nil {
				return err
			}
			if err := a.LocalStore.Set(localstore.KeyLastProjectID, projectID); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printf(w, "%s", header(fmt.Sprintf("QUESTS (%d, %s)", len(s.Data), s.Source)))
			for _, q := range s.Data {
				printf(w, "  %-36s %-32s %s\n", q.ID, q.Name, mutedStyle.Render(string(q.Source)))
			}
			return nil
		}))
	},
}
