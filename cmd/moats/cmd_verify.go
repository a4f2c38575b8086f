// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moats-ai/moats/services/verifier/core"
	"github.com/moats-ai/moats/services/verifier/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	verifyLibraryID  string // Document library to verify against
	verifyInputFile  string // Read the text from a file instead of args
	verifyJSONOutput bool   // Output as JSON
	verifyTimeout    time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// verifyCmd checks the claims in a text against a document library.
//
// # Examples
//
//	moats verify --library lib-1 "Revenue was $5M in Q3 2024."
//	moats verify --library lib-1 --file draft.md
//	cat draft.md | moats verify --library lib-1
//	moats verify --library lib-1 --json "..."   # JSON for scripting
var verifyCmd = &cobra.Command{
	Use:   "verify [text]",
	Short: "Verify the factual claims in a text against a document library",
	Long: `Segments the given text into factual claims and checks each one
against the evidence in a document library.

The text can be passed as an argument, read from a file with --file,
or piped on stdin.

Examples:
  moats verify --library lib-1 "Revenue was $5M in Q3 2024."
  moats verify --library lib-1 --file draft.md
  cat draft.md | moats verify --library lib-1`,
	Run: runVerifyCommand,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyLibraryID, "library", "l", "",
		"Document library ID to verify against")
	verifyCmd.Flags().StringVarP(&verifyInputFile, "file", "f", "",
		"Read the text to verify from this file")
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false,
		"Output as JSON for scripting")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute,
		"Request timeout")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runVerifyCommand(cmd *cobra.Command, args []string) {
	libraryID := verifyLibraryID
	if libraryID == "" {
		libraryID = config.LibraryID
	}
	if libraryID == "" {
		fmt.Fprintln(os.Stderr, "Error: no library specified (use --library or set library_id in config.yaml)")
		os.Exit(1)
	}

	text, err := readVerifyInput(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "Error: no text to verify")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	client := newVerifierClient(resolveServerURL())
	resp, err := client.Verify(ctx, text, libraryID)
	if err != nil {
		logger.Error("verify request failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if verifyJSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	renderResult(os.Stdout, resp)
}

// readVerifyInput resolves the text source: argument, --file, or stdin.
func readVerifyInput(args []string) (string, error) {
	if verifyInputFile != "" {
		data, err := os.ReadFile(verifyInputFile)
		if err != nil {
			return "", fmt.Errorf("cannot read %s: %w", verifyInputFile, err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("cannot read stdin: %w", err)
		}
		return string(data), nil
	}
	return "", nil
}

// renderResult prints the human-readable verdict report.
func renderResult(w io.Writer, resp datatypes.VerifyResponse) {
	result := resp.Result

	for i, claim := range result.Claims {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, claim.Verdict, claim.ClaimText)
		if claim.Reason != "" {
			fmt.Fprintf(w, "   %s (confidence %.2f)\n", claim.Reason, claim.Confidence)
		}
		if claim.Evidence != nil {
			location := claim.Evidence.Source
			if claim.Evidence.Page != nil {
				location = fmt.Sprintf("%s, page %d", location, *claim.Evidence.Page)
			}
			fmt.Fprintf(w, "   Evidence: %q (%s)\n", claim.Evidence.Text, location)
		}
	}

	fmt.Fprintln(w)
	if result.InsufficientEvidence {
		fmt.Fprintf(w, "Insufficient evidence: none of the %d claims could be checked against this library.\n",
			result.TotalClaims)
		return
	}
	fmt.Fprintf(w, "Trust score: %.2f (%d supported, %d partial, %d contradicted, %d without evidence)\n",
		result.TrustScore, result.SupportedCount, result.PartialCount,
		result.ContradictedCount, result.NoEvidenceCount)
}

// =============================================================================
// VERIFIER SERVICE CLIENT
// =============================================================================

// verifierClient is the thin HTTP client for the verifier service.
type verifierClient struct {
	httpClient *http.Client
	baseURL    string
}

func newVerifierClient(baseURL string) *verifierClient {
	return &verifierClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Verify posts the text to /v1/verify and decodes the result.
func (c *verifierClient) Verify(ctx context.Context, text, libraryID string) (datatypes.VerifyResponse, error) {
	payload, err := json.Marshal(datatypes.VerifyRequest{Text: text, LibraryID: libraryID})
	if err != nil {
		return datatypes.VerifyResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/verify", bytes.NewReader(payload))
	if err != nil {
		return datatypes.VerifyResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return datatypes.VerifyResponse{}, fmt.Errorf("verifier service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return datatypes.VerifyResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp datatypes.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			if errResp.Retryable {
				return datatypes.VerifyResponse{}, fmt.Errorf("%s (transient, retry may succeed)", errResp.Error)
			}
			return datatypes.VerifyResponse{}, fmt.Errorf("%s", errResp.Error)
		}
		return datatypes.VerifyResponse{}, fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}

	var parsed datatypes.VerifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return datatypes.VerifyResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Result == nil {
		parsed.Result = &core.VerificationResult{InsufficientEvidence: true, Claims: []core.ClaimVerdict{}}
	}
	return parsed, nil
}

// Health checks the service's /health endpoint.
func (c *verifierClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verifier service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}
	return nil
}
