// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPReranker(baseURL string) *HTTPReranker {
	return &HTTPReranker{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

func TestHTTPReranker_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "the claim", req.Query)
		assert.Len(t, req.Passages, 2)

		json.NewEncoder(w).Encode(rerankResponse{Scores: []float64{0.91, 0.12}})
	}))
	defer server.Close()

	reranker := newTestHTTPReranker(server.URL)
	scores, err := reranker.Rerank(context.Background(), "the claim", []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.91, 0.12}, scores)
}

func TestHTTPReranker_ScoreCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{Scores: []float64{0.91}})
	}))
	defer server.Close()

	reranker := newTestHTTPReranker(server.URL)
	_, err := reranker.Rerank(context.Background(), "the claim", []string{"first", "second"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scores for 2 passages")
}

func TestHTTPReranker_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reranker := newTestHTTPReranker(server.URL)
	_, err := reranker.Rerank(context.Background(), "the claim", []string{"first"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
