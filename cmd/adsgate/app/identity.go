// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sellermesh/adsgate/pkg/auth"
)

func newIdentityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect the identities reachable through the configured provider",
	}

	var identityType string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available identities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCtx, err := buildAppContext()
			if err != nil {
				return err
			}
			defer func() { _ = appCtx.manager.Close() }()

			identities, err := appCtx.manager.ListIdentities(cmd.Context(), auth.IdentityFilter{Type: identityType})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tREGION\tNAME")
			for _, ident := range identities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					ident.ID, ident.Type, ident.Region(), ident.Attributes["name"])
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&identityType, "type", "", "Provider-specific identity type filter")

	cmd.AddCommand(listCmd)
	return cmd
}
