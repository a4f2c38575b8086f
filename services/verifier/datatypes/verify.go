// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the request and response types for the
// verifier service's HTTP surface.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/moats-ai/moats/services/verifier/core"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxInputBytes is the maximum size of the text to verify. Larger
	// payloads are rejected before segmentation.
	MaxInputBytes = 64 * 1024 // 64KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// verifyValidate is the validator instance for verifier datatypes.
var verifyValidate *validator.Validate

func init() {
	verifyValidate = validator.New()
	_ = verifyValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) so oversized
// payloads are bounded regardless of encoding.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxInputBytes
}

// =============================================================================
// Verify Request
// =============================================================================

// VerifyRequest is the POST /v1/verify request body.
//
// # Description
//
// Carries the text whose factual claims should be checked and the
// document library to check them against. Every request includes a
// unique ID and timestamp for audit trails.
//
// # Fields
//
//   - RequestID: Optional on input; generated server-side when absent.
//   - Timestamp: Optional on input; Unix milliseconds (UTC), generated
//     server-side when absent.
//   - Text: Required. The text to segment into claims and verify.
//     Limited to 64KB.
//   - LibraryID: Required. The document library to retrieve evidence
//     from.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be a valid UUID v4
//   - Timestamp: required, must be > 0
//   - Text: required, max 64KB
//   - LibraryID: required
type VerifyRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	Text      string `json:"text" validate:"required,maxbytes"`
	LibraryID string `json:"library_id" validate:"required"`
}

// Validate validates the VerifyRequest fields after binding.
func (r *VerifyRequest) Validate() error {
	return verifyValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client
// did not supply them. Call before Validate.
func (r *VerifyRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Verify Response
// =============================================================================

// VerifyResponse is the POST /v1/verify response body.
//
// # Fields
//
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix milliseconds (UTC) when the response was built.
//   - Result: The full verification result: per-claim verdicts in
//     input order plus the aggregate trust score.
//   - ProcessingTimeMs: Wall-clock time spent verifying.
type VerifyResponse struct {
	RequestID        string                   `json:"request_id"`
	Timestamp        int64                    `json:"timestamp"`
	Result           *core.VerificationResult `json:"result"`
	ProcessingTimeMs int64                    `json:"processing_time_ms"`
}

// NewVerifyResponse builds a response envelope around a verification
// result.
func NewVerifyResponse(requestID string, result *core.VerificationResult, processingTime time.Duration) VerifyResponse {
	return VerifyResponse{
		RequestID:        requestID,
		Timestamp:        time.Now().UnixMilli(),
		Result:           result,
		ProcessingTimeMs: processingTime.Milliseconds(),
	}
}

// ErrorResponse is the uniform error body for the verifier's HTTP
// surface.
//
// # Fields
//
//   - Error: Human-readable message, sanitized of internal detail.
//   - Retryable: True when the failure is transient infrastructure
//     (vector store, LLM backend) and the client may retry.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}
