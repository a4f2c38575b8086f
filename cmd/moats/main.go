// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moats-ai/moats/pkg/logging"
)

var (
	config Config
	logger *logging.Logger
)

// Config is the optional config.yaml for the CLI. Every field has a
// flag or environment fallback, so a missing file is fine.
type Config struct {
	// ServerURL is the verifier service base URL.
	ServerURL string `yaml:"server_url"`

	// LibraryID is the default document library to verify against.
	LibraryID string `yaml:"library_id"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		configPath := os.Getenv("MOATS_CONFIG")
		if configPath == "" {
			configPath = "config.yaml"
		}

		yamlFile, err := os.ReadFile(configPath)
		if err == nil {
			if err := yaml.Unmarshal(yamlFile, &config); err != nil {
				log.Fatalf("Error parsing %s: %v", configPath, err)
			}
		}

		logger = logging.New(logging.Config{
			LogDir:  config.LogDir,
			Service: "cli",
		})
	}
}
