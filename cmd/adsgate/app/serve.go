// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/mcptools"
)

var serveCallbackAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tool surface over stdio",
	Long: `Serve starts the MCP server on standard input/output. When a direct
client id is configured, the OAuth callback listener is started alongside so
the interactive login flow can complete.`,
	RunE: serveCmdFunc,
}

func init() {
	serveCmd.Flags().StringVar(&serveCallbackAddr, "callback-addr", "localhost:9080",
		"Address for the OAuth callback listener")
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	logger.Initialize()

	appCtx, err := buildAppContext()
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.manager.Close(); err != nil {
			logger.Warnf("Error closing auth manager: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := appCtx.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize auth provider: %w", err)
	}

	flow, err := appCtx.buildFlow()
	if err != nil {
		return err
	}
	if flow != nil {
		go func() {
			if err := flow.Serve(ctx, serveCallbackAddr); err != nil {
				logger.Warnf("OAuth callback server stopped: %v", err)
			}
		}()
	}

	mcpServer := server.NewMCPServer(
		"adsgate",
		versionString(),
		server.WithToolCapabilities(false),
	)
	mcptools.NewHandler(appCtx.manager, flow).RegisterTools(mcpServer)

	logger.Infof("Starting MCP server (auth method: %s)", appCtx.manager.Method())
	return server.ServeStdio(mcpServer)
}
