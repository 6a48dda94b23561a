package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/daemon"
	"fieldsync/internal/logging"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one submission pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			result, err := d.RunPass(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Offline {
				fmt.Fprintln(out, "Device is offline; queued items were marked and will retry when connected")
				return nil
			}
			fmt.Fprintf(out, "Pass %s finished: %s (profile %s, batch %d)\n",
				result.PassID, result.Reason, result.Profile, result.BatchSize)
			fmt.Fprintf(out, "Selected %d, dispatched %d, completed %d", result.Selected, result.Dispatched, result.Completed)
			if result.Exhausted > 0 {
				fmt.Fprintf(out, ", exhausted %d", result.Exhausted)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
