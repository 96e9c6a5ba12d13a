package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/app"
	"github.com/genesis-ai-dev/langquest-sub009/internal/attachment"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

var attachmentsQueue string

var attachmentsCmd = &cobra.Command{
	Use:     "attachments",
	Aliases: []string{"att"},
	Short:   "Inspect and drive the attachment queues",
	Long: `Inspect and drive the attachment queues.

Subcommands:
  list            List attachments and their transfer state
  retry <id>      Re-queue an attachment in error or cancelled
  cancel <id>     Cancel a queued or running transfer
  run             Run one round of transfers
  sweep           Report orphaned attachments and dangling references
  cleanup         Remove abandoned temporary attachments`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var attachmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attachments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments list", withApp(cmd, func(ctx context.Context, a *app.App) error {
			queues, err := selectedQueues(a)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, q := range queues {
				rows, err := q.List()
				if err != nil {
					return err
				}
				printf(w, "%s", header(fmt.Sprintf("%s (%d)", q.Name(), len(rows))))
				for _, r := range rows {
					state := string(r.State)
					if r.State == models.StateError {
						state = errorStyle.Render(state)
					}
					printf(w, "  %-36s %-16s retries=%d %s\n", r.ID, state, r.RetryCount, mutedStyle.Render(r.RemoteKey))
					if r.LastError != "" {
						printf(w, "    %s\n", mutedStyle.Render(r.LastError))
					}
				}
			}
			return nil
		}))
	},
}

var attachmentsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-queue a failed or cancelled attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments retry", withQueueFor(cmd, args[0], func(ctx context.Context, q *attachment.Queue) error {
			if err := q.Retry(ctx, args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Re-queued %s\n", args[0])
			return nil
		}))
	},
}

var attachmentsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a transfer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments cancel", withQueueFor(cmd, args[0], func(ctx context.Context, q *attachment.Queue) error {
			if err := q.Cancel(ctx, args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
			return nil
		}))
	},
}

var attachmentsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one round of transfers",
	Long: `Run one round of transfers on each selected queue and wait for them to
finish. Transfers that fail are rescheduled with backoff.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments run", withApp(cmd, func(ctx context.Context, a *app.App) error {
			queues, err := selectedQueues(a)
			if err != nil {
				return err
			}
			if !a.Network.Online() {
				printf(cmd.OutOrStdout(), "%s\n", warnStyle.Render("Offline; nothing dispatched."))
				return nil
			}
			for _, q := range queues {
				// Rows interrupted by an earlier crash are re-queued first.
				if _, err := a.DB.ResetInterrupted(q.Name()); err != nil {
					return err
				}
				n, err := q.RunOnce(ctx)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s: %d transfers\n", q.Name(), n)
			}
			return nil
		}))
	},
}

var attachmentsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Report orphans and dangling references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments sweep", withApp(cmd, func(ctx context.Context, a *app.App) error {
			queues, err := selectedQueues(a)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, q := range queues {
				report, err := q.Sweep(ctx)
				if err != nil {
					return err
				}
				printf(w, "%s: %d orphans, %d dangling refs\n", q.Name(), len(report.Orphans), len(report.Dangling))
			}
			return nil
		}))
	},
}

var cleanupOlderThan time.Duration

var attachmentsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove abandoned temporary attachments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError("attachments cleanup", withApp(cmd, func(ctx context.Context, a *app.App) error {
			olderThan := cleanupOlderThan
			if olderThan == 0 {
				olderThan = a.Config.Queue.AbandonAfter
			}
			n, err := a.Temporary.CleanupAbandoned(ctx, olderThan)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %d abandoned attachments.\n", n)
			return nil
		}))
	},
}

func init() {
	attachmentsCmd.PersistentFlags().StringVarP(&attachmentsQueue, "queue", "q", "", "limit to one queue (temporary or permanent)")
	attachmentsCleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "minimum age (default from config)")

	attachmentsCmd.AddCommand(attachmentsListCmd)
	attachmentsCmd.AddCommand(attachmentsRetryCmd)
	attachmentsCmd.AddCommand(attachmentsCancelCmd)
	attachmentsCmd.AddCommand(attachmentsRunCmd)
	attachmentsCmd.AddCommand(attachmentsSweepCmd)
	attachmentsCmd.AddCommand(attachmentsCleanupCmd)
}

func selectedQueues(a *app.App) ([]*attachment.Queue, error) {
	if attachmentsQueue == "" {
		return a.Queues(), nil
	}
	q, err := a.Queue(models.QueueName(attachmentsQueue))
	if err != nil {
		return nil, err
	}
	return []*attachment.Queue{q}, nil
}

// withQueueFor runs fn with the queue the attachment currently belongs to.
func withQueueFor(cmd *cobra.Command, id string, fn func(ctx context.Context, q *attachment.Queue) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		row, err := a.Temporary.Get(id)
		if err != nil {
			return err
		}
		q, err := a.Queue(row.Queue)
		if err != nil {
			return err
		}
		return fn(ctx, q)
	})
}
