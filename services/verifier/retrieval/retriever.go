// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval finds the library passages most relevant to a
// claim: embed the claim, vector-search the library's chunks, then
// optionally rerank with a cross-encoder before applying the relevance
// gate.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moats-ai/moats/services/llm"
	"github.com/moats-ai/moats/services/verifier/core"
)

var tracer = otel.Tracer("moats.verifier.retrieval")

// LibraryChunkClassName is the Weaviate class holding ingested library
// passages.
const LibraryChunkClassName = "LibraryChunk"

// DefaultMinRelevance is the reranker-score gate: candidates below it
// are dropped even if fewer than k passages remain. Applied only when
// a reranker is configured; raw vector certainty is not on the same
// scale.
const DefaultMinRelevance = 0.3

// candidateMultiplier is how many vector-search candidates are fetched
// per requested passage, giving the reranker a wider pool.
const candidateMultiplier = 2

// vectorSearcher is the seam between the retriever and Weaviate,
// narrow so tests can substitute canned responses.
type vectorSearcher interface {
	search(ctx context.Context, vector []float32, libraryID string, limit int) (*models.GraphQLResponse, error)
}

// WeaviateRetriever implements the pipeline's Retriever against a
// Weaviate vector store.
//
// # Description
//
// Retrieve embeds the claim text, fetches the nearest chunks of the
// requested library, and reranks them when a cross-encoder sidecar is
// configured. Every stage failure is wrapped in *core.RetrievalError
// with the stage name; an empty candidate set is a valid result, not
// an error.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateRetriever struct {
	searcher     vectorSearcher
	embedder     llm.EmbeddingClient
	reranker     Reranker
	minRelevance float64
}

// NewWeaviateRetriever creates a retriever over the given Weaviate
// client. reranker may be nil, which disables reranking and the
// relevance gate. Panics if client or embedder is nil (fail-fast for
// programming errors).
func NewWeaviateRetriever(client *weaviate.Client, embedder llm.EmbeddingClient, reranker Reranker) *WeaviateRetriever {
	if client == nil {
		panic("NewWeaviateRetriever: client must not be nil")
	}
	if embedder == nil {
		panic("NewWeaviateRetriever: embedder must not be nil")
	}
	return &WeaviateRetriever{
		searcher:     &weaviateSearcher{client: client},
		embedder:     embedder,
		reranker:     reranker,
		minRelevance: DefaultMinRelevance,
	}
}

// Retrieve implements core.Retriever.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - query: The claim text to search with.
//   - libraryID: The library whose chunks are searched.
//   - k: Maximum number of passages to return.
//
// # Outputs
//
//   - []core.EvidencePassage: Best first. Empty when the library has
//     no candidates or all were gated out.
//   - error: *core.RetrievalError naming the failed stage.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query, libraryID string, k int) ([]core.EvidencePassage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("library.id", libraryID),
		attribute.Int("retrieval.k", k),
	)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &core.RetrievalError{Stage: "embed", Err: err}
	}

	result, err := r.searcher.search(ctx, vector, libraryID, k*candidateMultiplier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &core.RetrievalError{Stage: "search", Err: err}
	}

	candidates, err := parseChunks(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &core.RetrievalError{Stage: "search", Err: err}
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(candidates)))
	if len(candidates) == 0 {
		slog.Debug("No candidates in library", "library_id", libraryID)
		return nil, nil
	}

	gated := r.reranker != nil
	if gated {
		if err := r.rerank(ctx, query, candidates); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, &core.RetrievalError{Stage: "rerank", Err: err}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	if gated {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.RelevanceScore >= r.minRelevance {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	span.SetAttributes(attribute.Int("retrieval.returned", len(candidates)))
	return candidates, nil
}

// rerank replaces each candidate's relevance score with the
// cross-encoder score for (query, passage).
func (r *WeaviateRetriever) rerank(ctx context.Context, query string, candidates []core.EvidencePassage) error {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		return err
	}
	for i := range candidates {
		candidates[i].RelevanceScore = scores[i]
	}
	return nil
}

// =============================================================================
// Weaviate Access
// =============================================================================

type weaviateSearcher struct {
	client *weaviate.Client
}

func (s *weaviateSearcher) search(ctx context.Context, vector []float32, libraryID string, limit int) (*models.GraphQLResponse, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	whereFilter := filters.Where().
		WithPath([]string{"library_id"}).
		WithOperator(filters.Equal).
		WithValueString(libraryID)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "source"},
		{Name: "page"},
		{Name: "_additional { certainty }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(LibraryChunkClassName).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector search error: %s", result.Errors[0].Message)
	}
	return result, nil
}

// chunkRecord mirrors the GraphQL shape of a LibraryChunk object.
type chunkRecord struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       *int   `json:"page"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// parseChunks converts a GraphQL response into evidence passages via
// the marshal/unmarshal round trip, carrying the vector certainty as
// the initial relevance score.
func parseChunks(result *models.GraphQLResponse) ([]core.EvidencePassage, error) {
	raw, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search response: %w", err)
	}

	var parsed struct {
		Get struct {
			LibraryChunk []chunkRecord `json:"LibraryChunk"`
		} `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	passages := make([]core.EvidencePassage, 0, len(parsed.Get.LibraryChunk))
	for _, chunk := range parsed.Get.LibraryChunk {
		passages = append(passages, core.EvidencePassage{
			Text:           chunk.Text,
			Source:         chunk.Source,
			Page:           chunk.Page,
			RelevanceScore: chunk.Additional.Certainty,
		})
	}
	return passages, nil
}
