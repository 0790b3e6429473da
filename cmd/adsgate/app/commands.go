// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the adsgate command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sellermesh/adsgate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "adsgate",
	DisableAutoGenTag: true,
	Short:             "adsgate exposes the Amazon Ads API to MCP clients",
	Long: `adsgate is a gateway that exposes the Amazon Advertising API to MCP
(Model Context Protocol) clients. It resolves, caches, refreshes, and securely
persists the credentials needed to call the API on behalf of one of several
identities, using either self-managed OAuth2 credentials or a federated
identity broker.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the adsgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newIdentityCommand())
	rootCmd.AddCommand(newOAuthCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
