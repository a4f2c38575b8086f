// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moats-ai/moats/services/verifier/core"
	"github.com/moats-ai/moats/services/verifier/datatypes"
)

type stubVerifier struct {
	result *core.VerificationResult
	err    error

	lastText      string
	lastLibraryID string
}

func (s *stubVerifier) Verify(ctx context.Context, text, libraryID string) (*core.VerificationResult, error) {
	s.lastText = text
	s.lastLibraryID = libraryID
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func performVerify(t *testing.T, verifier Verifier, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/verify", HandleVerify(verifier))

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHandleVerify_OK(t *testing.T) {
	verifier := &stubVerifier{result: &core.VerificationResult{
		TrustScore:  0.95,
		TotalClaims: 1,
		Claims: []core.ClaimVerdict{{
			ClaimText:  "Revenue was $5M in Q3 2024.",
			Verdict:    core.VerdictSupported,
			Confidence: 0.95,
		}},
		SupportedCount: 1,
	}}

	recorder := performVerify(t, verifier, gin.H{
		"text":       "Revenue was $5M in Q3 2024.",
		"library_id": "lib-1",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Revenue was $5M in Q3 2024.", verifier.lastText)
	assert.Equal(t, "lib-1", verifier.lastLibraryID)

	var resp datatypes.VerifyResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	require.NotNil(t, resp.Result)
	assert.InDelta(t, 0.95, resp.Result.TrustScore, 1e-9)
	require.Len(t, resp.Result.Claims, 1)
	assert.Equal(t, core.VerdictSupported, resp.Result.Claims[0].Verdict)
}

func TestHandleVerify_EchoesClientRequestID(t *testing.T) {
	verifier := &stubVerifier{result: &core.VerificationResult{Claims: []core.ClaimVerdict{}}}

	recorder := performVerify(t, verifier, gin.H{
		"request_id": "550e8400-e29b-41d4-a716-446655440000",
		"text":       "Revenue was $5M in Q3 2024.",
		"library_id": "lib-1",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp datatypes.VerifyResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", resp.RequestID)
}

func TestHandleVerify_InvalidBody(t *testing.T) {
	verifier := &stubVerifier{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/verify", HandleVerify(verifier))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, verifier.lastText)
}

func TestHandleVerify_MissingFields(t *testing.T) {
	verifier := &stubVerifier{}

	recorder := performVerify(t, verifier, gin.H{"text": "Revenue was $5M in Q3 2024."})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, verifier.lastLibraryID)
}

func TestHandleVerify_RetrievalErrorIsRetryable(t *testing.T) {
	verifier := &stubVerifier{err: &core.RetrievalError{Stage: "search", Err: errors.New("weaviate down")}}

	recorder := performVerify(t, verifier, gin.H{
		"text":       "Revenue was $5M in Q3 2024.",
		"library_id": "lib-1",
	})

	require.Equal(t, http.StatusBadGateway, recorder.Code)
	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
	assert.Equal(t, "evidence retrieval failed", resp.Error)
}

func TestHandleVerify_LLMErrorIsRetryable(t *testing.T) {
	verifier := &stubVerifier{err: &core.LLMError{Err: errors.New("backend unreachable")}}

	recorder := performVerify(t, verifier, gin.H{
		"text":       "Revenue was $5M in Q3 2024.",
		"library_id": "lib-1",
	})

	require.Equal(t, http.StatusBadGateway, recorder.Code)
	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
}

func TestHandleVerify_UnknownErrorIs500(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("boom")}

	recorder := performVerify(t, verifier, gin.H{
		"text":       "Revenue was $5M in Q3 2024.",
		"library_id": "lib-1",
	})

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.False(t, resp.Retryable)
	assert.Equal(t, "internal error", resp.Error)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}
