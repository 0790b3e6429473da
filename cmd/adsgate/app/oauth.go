// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/oauthflow"
)

func newOAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Interactive Login-with-Amazon authorization",
	}

	var callbackAddr string
	var timeout time.Duration

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Run the authorization flow and store the refresh token",
		Long: `Login prints the Login-with-Amazon consent URL, waits for the browser
callback, exchanges the authorization code, and stores the resulting refresh
token in the encrypted bootstrap vault.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCtx, err := buildAppContext()
			if err != nil {
				return err
			}
			defer func() { _ = appCtx.manager.Close() }()

			flow, err := appCtx.buildFlow()
			if err != nil {
				return err
			}
			if flow == nil {
				return errors.New(errors.ErrConfig,
					"interactive authorization requires AMAZON_AD_API_CLIENT_ID")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			go func() {
				if err := flow.Serve(ctx, callbackAddr); err != nil {
					logger.Warnf("OAuth callback server stopped: %v", err)
				}
			}()

			sess, err := flow.Start("cli")
			if err != nil {
				return err
			}
			fmt.Println("Open this URL in your browser to authorize:")
			fmt.Println()
			fmt.Println("  " + sess.AuthURL)
			fmt.Println()

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return errors.New(errors.ErrStateValidation, "authorization timed out")
				case <-ticker.C:
					status, err := flow.Status(sess.ID)
					if err != nil {
						return err
					}
					switch status.Status {
					case oauthflow.StatusCompleted:
						fmt.Println("Authorization complete, refresh token stored.")
						return nil
					case oauthflow.StatusFailed:
						return errors.Newf(errors.ErrStateValidation, "authorization failed: %s", status.Error)
					}
				}
			}
		},
	}
	loginCmd.Flags().StringVar(&callbackAddr, "callback-addr", "localhost:9080",
		"Address for the OAuth callback listener")
	loginCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute,
		"How long to wait for the browser callback")

	cmd.AddCommand(loginCmd)
	return cmd
}
