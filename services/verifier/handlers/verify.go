// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the verifier service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moats-ai/moats/services/verifier/core"
	"github.com/moats-ai/moats/services/verifier/datatypes"
)

var verifyTracer = otel.Tracer("moats.verifier.handlers")

// Verifier is the handler-facing slice of the pipeline.
type Verifier interface {
	Verify(ctx context.Context, text, libraryID string) (*core.VerificationResult, error)
}

// HandleVerify is the POST /v1/verify handler.
//
// # Description
//
// Binds and validates the request, runs the verification pipeline, and
// maps failures onto the error contract: malformed input is 400,
// transient infrastructure failures (vector store, LLM backend) are
// 502 with retryable set, anything else is 500. Partial results are
// never returned on error.
func HandleVerify(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := verifyTracer.Start(c.Request.Context(), "HandleVerify")
		defer span.End()

		var req datatypes.VerifyRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the verify request", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}

		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Rejected invalid verify request", "request_id", req.RequestID, "error", err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("library.id", req.LibraryID),
		)

		started := time.Now()
		result, err := verifier.Verify(ctx, req.Text, req.LibraryID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeVerifyError(c, req.RequestID, err)
			return
		}

		elapsed := time.Since(started)
		slog.Info("Verification complete",
			"request_id", req.RequestID,
			"library_id", req.LibraryID,
			"claims", result.TotalClaims,
			"trust_score", result.TrustScore,
			"duration_ms", elapsed.Milliseconds())
		c.JSON(http.StatusOK, datatypes.NewVerifyResponse(req.RequestID, result, elapsed))
	}
}

// writeVerifyError maps pipeline failures onto HTTP status codes
// without leaking backend details to the client.
func writeVerifyError(c *gin.Context, requestID string, err error) {
	switch {
	case core.IsRetrievalError(err):
		slog.Error("Evidence retrieval failed", "request_id", requestID, "error", err)
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Error:     "evidence retrieval failed",
			Retryable: true,
		})
	case core.IsLLMError(err):
		slog.Error("LLM backend failed", "request_id", requestID, "error", err)
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Error:     "verdict generation failed",
			Retryable: true,
		})
	default:
		slog.Error("Verification failed", "request_id", requestID, "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: "internal error",
		})
	}
}

// HealthCheck is the GET /health handler.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
