package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
)

func newSignCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the webhook signature of a payload (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				if err := config.LoadDotEnv(); err != nil {
					return err
				}
				secret = os.Getenv("WEBHOOK_SECRET")
			}
			if secret == "" {
				return errors.New("missing secret: pass --secret or set WEBHOOK_SECRET")
			}

			var (
				payload []byte
				err     error
			)
			if len(args) == 1 {
				payload, err = os.ReadFile(args[0])
			} else {
				payload, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), billingapp.NewSignatureVerifier(secret).Sign(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook secret (defaults to WEBHOOK_SECRET)")
	return cmd
}
