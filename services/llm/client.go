// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the LLM backend abstraction used by the
// verifier: synchronous text completion for the verdict fallback, and
// query embeddings for evidence retrieval. The concrete backend
// (OpenAI or Ollama) is selected by configuration.
package llm

import (
	"context"
	"fmt"
	"os"
)

// GenerationParams are the optional sampling parameters for a
// completion request. Nil fields use the backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the completion contract: one prompt in, one completion
// out. No streaming; the verdict fallback consumes whole responses.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// EmbeddingClient produces the query vector for evidence retrieval.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend combines completion and embedding; the verifier service
// wires one Backend into both the retriever and the verdict generator.
type Backend interface {
	LLMClient
	EmbeddingClient
}

// NewBackend selects and initializes an LLM backend from the
// LLM_BACKEND_TYPE environment variable ("openai" or "ollama").
//
// # Outputs
//
//   - Backend: Ready for use.
//   - error: Non-nil if the backend type is unknown or its own
//     configuration is missing.
func NewBackend() (Backend, error) {
	backendType := os.Getenv("LLM_BACKEND_TYPE")
	switch backendType {
	case "openai":
		return NewOpenAIClient()
	case "ollama", "":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND_TYPE %q (want \"openai\" or \"ollama\")", backendType)
	}
}
