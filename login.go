package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galleryflow/internal/auth"
)

// newLoginCmd runs the provider consent flow eagerly so that a later import
// in the same session reuses the cached token without re-prompting.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to the storage provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			broker, err := auth.New(auth.Config{
				ClientID:    resolvedCfg.Provider.ClientID,
				AuthURL:     resolvedCfg.Provider.AuthURL,
				TokenURL:    resolvedCfg.Provider.TokenURL,
				Scopes:      resolvedCfg.Provider.Scopes,
				OpenBrowser: openBrowser,
			}, logger)
			if err != nil {
				return fmt.Errorf("provider import unavailable: %w", err)
			}

			tok, err := broker.Acquire(cmd.Context())
			if err != nil {
				return err
			}

			if tok.Expiry.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "Authorized for this session.")

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Authorized for this session (token expires %s).\n",
				tok.Expiry.Format("15:04:05"))

			return nil
		},
	}
}
