// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/moats-ai/moats/services/verifier/core"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeSearcher struct {
	response  *models.GraphQLResponse
	err       error
	lastLimit int
}

func (f *fakeSearcher) search(ctx context.Context, vector []float32, libraryID string, limit int) (*models.GraphQLResponse, error) {
	f.lastLimit = limit
	return f.response, f.err
}

type fakeReranker struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func chunk(text, source string, page interface{}, certainty float64) map[string]interface{} {
	return map[string]interface{}{
		"text":        text,
		"source":      source,
		"page":        page,
		"_additional": map[string]interface{}{"certainty": certainty},
	}
}

func searchResponse(chunks ...map[string]interface{}) *models.GraphQLResponse {
	items := make([]interface{}, len(chunks))
	for i, c := range chunks {
		items[i] = c
	}
	return &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"LibraryChunk": items,
			},
		},
	}
}

func newTestRetriever(searcher vectorSearcher, reranker Reranker) *WeaviateRetriever {
	return &WeaviateRetriever{
		searcher:     searcher,
		embedder:     &fakeEmbedder{vector: []float32{0.1, 0.2}},
		reranker:     reranker,
		minRelevance: DefaultMinRelevance,
	}
}

func TestRetrieve_WithoutReranker(t *testing.T) {
	searcher := &fakeSearcher{response: searchResponse(
		chunk("low certainty passage", "a.pdf", 1.0, 0.12),
		chunk("high certainty passage", "b.pdf", 2.0, 0.88),
		chunk("medium certainty passage", "c.pdf", nil, 0.55),
	)}

	retriever := newTestRetriever(searcher, nil)
	passages, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 2)

	require.NoError(t, err)
	// Sorted by certainty, cut to k. No gate without a reranker: raw
	// certainty is not on the reranker score scale.
	require.Len(t, passages, 2)
	assert.Equal(t, "high certainty passage", passages[0].Text)
	assert.InDelta(t, 0.88, passages[0].RelevanceScore, 1e-9)
	assert.Equal(t, "medium certainty passage", passages[1].Text)
	assert.Nil(t, passages[1].Page)
	assert.Equal(t, 4, searcher.lastLimit)
}

func TestRetrieve_WithReranker(t *testing.T) {
	searcher := &fakeSearcher{response: searchResponse(
		chunk("first candidate", "a.pdf", 1.0, 0.9),
		chunk("second candidate", "b.pdf", 2.0, 0.8),
		chunk("third candidate", "c.pdf", 3.0, 0.7),
	)}
	reranker := &fakeReranker{scores: []float64{0.15, 0.92, 0.48}}

	retriever := newTestRetriever(searcher, reranker)
	passages, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 3)

	require.NoError(t, err)
	// Rerank scores replace certainty, then the 0.3 gate drops the
	// first candidate despite its high certainty.
	require.Len(t, passages, 2)
	assert.Equal(t, "second candidate", passages[0].Text)
	assert.InDelta(t, 0.92, passages[0].RelevanceScore, 1e-9)
	assert.Equal(t, "third candidate", passages[1].Text)
	assert.Equal(t, 1, reranker.calls)
}

func TestRetrieve_GateCanEmptyResults(t *testing.T) {
	searcher := &fakeSearcher{response: searchResponse(
		chunk("weak candidate", "a.pdf", 1.0, 0.9),
	)}
	reranker := &fakeReranker{scores: []float64{0.05}}

	retriever := newTestRetriever(searcher, reranker)
	passages, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 5)

	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieve_EmptyLibrary(t *testing.T) {
	searcher := &fakeSearcher{response: searchResponse()}
	reranker := &fakeReranker{}

	retriever := newTestRetriever(searcher, reranker)
	passages, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 5)

	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Zero(t, reranker.calls)
}

func TestRetrieve_EmbedErrorWrapsStage(t *testing.T) {
	retriever := newTestRetriever(&fakeSearcher{}, nil)
	retriever.embedder = &fakeEmbedder{err: errors.New("backend down")}

	_, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 5)

	require.Error(t, err)
	require.True(t, core.IsRetrievalError(err))
	var retrievalErr *core.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "embed", retrievalErr.Stage)
}

func TestRetrieve_SearchErrorWrapsStage(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("weaviate unreachable")}

	retriever := newTestRetriever(searcher, nil)
	_, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 5)

	require.Error(t, err)
	var retrievalErr *core.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "search", retrievalErr.Stage)
}

func TestRetrieve_RerankErrorWrapsStage(t *testing.T) {
	searcher := &fakeSearcher{response: searchResponse(
		chunk("candidate", "a.pdf", 1.0, 0.9),
	)}
	reranker := &fakeReranker{err: errors.New("sidecar timeout")}

	retriever := newTestRetriever(searcher, reranker)
	_, err := retriever.Retrieve(context.Background(), "the claim", "lib-1", 5)

	require.Error(t, err)
	var retrievalErr *core.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "rerank", retrievalErr.Stage)
}

func TestParseChunks(t *testing.T) {
	passages, err := parseChunks(searchResponse(
		chunk("passage text", "report.pdf", 7.0, 0.82),
	))

	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "passage text", passages[0].Text)
	assert.Equal(t, "report.pdf", passages[0].Source)
	require.NotNil(t, passages[0].Page)
	assert.Equal(t, 7, *passages[0].Page)
	assert.InDelta(t, 0.82, passages[0].RelevanceScore, 1e-9)
}
