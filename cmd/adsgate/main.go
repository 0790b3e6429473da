// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the adsgate CLI.
package main

import (
	"os"

	"github.com/sellermesh/adsgate/cmd/adsgate/app"
	"github.com/sellermesh/adsgate/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
