// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// RetrievalError is an infrastructure failure during evidence
// retrieval (embedding, vector search, or reranking).
//
// # Description
//
// A RetrievalError is fatal for the whole verify request: inability to
// search must stay distinguishable from a true empty result, so the
// pipeline never downgrades it to NO_EVIDENCE. Handlers should report
// it as a retryable error.
//
// # Fields
//
//   - Stage: Which retrieval stage failed ("embed", "search", "rerank").
//   - Err: The underlying cause.
type RetrievalError struct {
	Stage string
	Err   error
}

// Error implements the error interface for RetrievalError.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s stage: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// IsRetrievalError checks whether an error (anywhere in its chain) is
// a *RetrievalError. Handlers use this to pick the HTTP status.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// LLMError is a hard failure of the LLM provider during the fallback
// path: no completion at all, as opposed to a malformed one.
//
// Malformed completions are parsed permissively and default to
// NO_EVIDENCE; a provider that cannot answer is an infrastructure
// failure and is surfaced, not defaulted.
type LLMError struct {
	Err error
}

// Error implements the error interface for LLMError.
func (e *LLMError) Error() string {
	return fmt.Sprintf("llm fallback failed: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// IsLLMError checks whether an error (anywhere in its chain) is a
// *LLMError.
func IsLLMError(err error) bool {
	var le *LLMError
	return errors.As(err, &le)
}
