// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd pings the verifier service.
//
// # Examples
//
//	moats health
//	moats health --server http://verifier:12310
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the verifier service is reachable",
	Run:   runHealthCommand,
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runHealthCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	target := resolveServerURL()
	client := newVerifierClient(target)
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Verifier at %s is not healthy: %v\n", target, err)
		os.Exit(1)
	}
	fmt.Printf("Verifier at %s is healthy.\n", target)
}
