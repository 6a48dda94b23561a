package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/creds"
	"fieldsync/internal/services/ledger"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var refreshToken string
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store ledger credentials for background submission",
		Long: "Stores a ledger refresh token in the credentials file so the\n" +
			"daemon can reauthorize silently. Reads the token from --refresh-token\n" +
			"or, when omitted, from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			token := strings.TrimSpace(refreshToken)
			if token == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Refresh token: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read refresh token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("refresh token is required")
			}

			if !skipVerify {
				if _, err := ledger.New(cfg).RefreshSession(cmd.Context(), token); err != nil {
					return fmt.Errorf("verify refresh token: %w", err)
				}
			}

			if err := creds.WriteCredentials(cfg.Paths.CredentialsFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials stored in %s\n", cfg.Paths.CredentialsFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Ledger refresh token")
	cmd.Flags().BoolVar(&skipVerify, "no-verify", false, "Store without contacting the ledger")
	return cmd
}
