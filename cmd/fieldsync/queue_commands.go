package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the submission queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show active queue counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access *queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusTable(stats))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var showCompleted bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access *queueaccess.Access) error {
				var items []*queue.Item
				var err error
				if showCompleted {
					items, err = access.ListCompleted(cmd.Context())
				} else {
					items, err = access.ListActive(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), itemsTable(items))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showCompleted, "completed", false, "List the completed archive instead of active items")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show full delivery state for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access *queueaccess.Access) error {
				item, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printItem(cmd, item)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var serviceFlag string
	var force bool

	cmd := &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Re-arm an item for the next sync pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access *queueaccess.Access) error {
				service := queue.ServiceName(strings.TrimSpace(serviceFlag))
				item, err := access.Retry(cmd.Context(), args[0], service, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s queued for retry (status %s)\n", item.LocalID, item.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&serviceFlag, "service", "s", "", "Retry only one service (ledger, proof, linking)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-arm an item that exhausted its retry window")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var acknowledge bool

	cmd := &cobra.Command{
		Use:   "clear <item-id>",
		Short: "Remove a completed or abandoned item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access *queueaccess.Access) error {
				if err := access.Clear(cmd.Context(), args[0], acknowledge); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed item %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&acknowledge, "acknowledge", false, "Confirm giving up on an exhausted item")
	return cmd
}

func printItem(cmd *cobra.Command, item *queue.Item) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Item:      %s\n", item.LocalID)
	fmt.Fprintf(out, "Action:    %s\n", item.Payload.ActionType)
	fmt.Fprintf(out, "Account:   %s\n", item.Payload.AccountAddress)
	fmt.Fprintf(out, "Status:    %s\n", item.Status)
	fmt.Fprintf(out, "Created:   %s\n", item.CreatedAt.Format(time.RFC3339))
	if item.LastAttemptAt != nil {
		fmt.Fprintf(out, "Attempted: %s\n", item.LastAttemptAt.Format(time.RFC3339))
	}
	if item.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", item.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Retries:   %d\n", item.TotalRetryCount)
	if item.Exhausted {
		fmt.Fprintln(out, "Exhausted: retry window elapsed; only a forced retry will re-arm this item")
	}

	fmt.Fprintln(out, servicesTable(item))
}
