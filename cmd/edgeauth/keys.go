package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/edgeauth/keyset"
	"github.com/spf13/cobra"
)

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Fetch the signing key set and list its key IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer st.Close()

			cache, ok := st.provider.Keys().(*keyset.Cache)
			if !ok {
				return errors.New("listing keys is not supported with a managed key source")
			}
			if err := cache.Refresh(cmd.Context()); err != nil {
				return err
			}

			stats := cache.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched at: %s\n", stats.FetchedAt.UTC().Format(time.RFC3339))
			if stats.MaxAge > 0 {
				fmt.Fprintf(out, "max age:    %s\n", stats.MaxAge)
			} else {
				fmt.Fprintln(out, "max age:    process lifetime")
			}
			for _, kid := range stats.KeyIDs {
				fmt.Fprintln(out, kid)
			}
			return nil
		},
	}
}
