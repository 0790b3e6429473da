// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached tokens",
	}

	var identityID string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Invalidate cached tokens",
		RunE: func(_ *cobra.Command, _ []string) error {
			appCtx, err := buildAppContext()
			if err != nil {
				return err
			}
			defer func() { _ = appCtx.manager.Close() }()

			removed := appCtx.manager.InvalidateTokens(tokenstore.Filter{IdentityID: identityID})
			fmt.Printf("Invalidated %d cached token(s)\n", removed)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&identityID, "identity", "", "Only invalidate tokens for this identity")

	cmd.AddCommand(clearCmd)
	return cmd
}
