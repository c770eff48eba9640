package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/edge"
	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its claims",
		Long: `Verifies a token exactly as inbound requests are verified and prints the
claims as JSON. On rejection the failure kind is printed, which is never
revealed to HTTP clients. A leading "Bearer " is ignored; "-" reads the token
from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := args[0]
			if tok == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read token from stdin: %w", err)
				}
				tok = string(data)
			}
			tok = strings.TrimPrefix(strings.TrimSpace(tok), edge.BearerPrefix)
			if tok == "" {
				return errors.New("token cannot be empty")
			}

			st, err := buildStack(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer st.Close()

			ui, err := st.provider.CheckAuthentication(cmd.Context(), tok)
			if err != nil {
				return fmt.Errorf("token rejected (%s): %w", auth.KindOf(err), err)
			}
			var claims map[string]any
			if err := ui.Claims(&claims); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}
