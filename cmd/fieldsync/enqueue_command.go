package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var payloadFile string
	var action string
	var account string
	var collector string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a submission to the queue",
		Long: "Add a submission to the queue. The payload is read from a JSON file\n" +
			"(--payload, use - for stdin) or assembled from the flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(payloadFile, action, account, collector)
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access *queueaccess.Access) error {
				item, err := access.Enqueue(cmd.Context(), payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s (%s)\n", item.LocalID, payload.ActionType)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", "JSON payload file, or - for stdin")
	cmd.Flags().StringVar(&action, "action", "", "Event action type")
	cmd.Flags().StringVar(&account, "account", "", "Originating account address")
	cmd.Flags().StringVar(&collector, "collector", "", "Collector identifier")
	return cmd
}

func buildPayload(payloadFile, action, account, collector string) (queue.Payload, error) {
	var payload queue.Payload

	if strings.TrimSpace(payloadFile) != "" {
		data, err := readPayloadFile(payloadFile)
		if err != nil {
			return payload, err
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, fmt.Errorf("parse payload: %w", err)
		}
	}
	if action != "" {
		payload.ActionType = action
	}
	if account != "" {
		payload.AccountAddress = account
	}
	if collector != "" {
		payload.CollectorID = collector
	}

	if payload.ActionType == "" || payload.AccountAddress == "" {
		return payload, errors.New("payload requires an action type and an account address")
	}
	return payload, nil
}

func readPayloadFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
