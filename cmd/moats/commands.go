// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL string

	rootCmd = &cobra.Command{
		Use:   "moats",
		Short: "A cli to verify factual claims against your document library",
		Long: `Moats checks the factual claims in a piece of text against a
library of source documents and reports, per claim, whether the
library supports, contradicts, or cannot confirm it.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Verifier service base URL (overrides config.yaml and MOATS_SERVER_URL)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(healthCmd)
}

// resolveServerURL applies the flag > environment > config > default
// precedence.
func resolveServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("MOATS_SERVER_URL"); env != "" {
		return env
	}
	if config.ServerURL != "" {
		return config.ServerURL
	}
	return "http://localhost:12310"
}
