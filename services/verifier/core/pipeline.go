// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("moats.verifier.core")

// =============================================================================
// Pipeline Orchestrator
// =============================================================================

const (
	defaultTopK    = 5
	defaultWorkers = 4
)

// Verdict weights for the aggregate trust score. NO_EVIDENCE claims
// are excluded from the aggregate entirely.
const (
	weightSupported          = 1.0
	weightPartiallySupported = 0.6
	weightContradicted       = 0.0
)

// Retriever fetches the evidence passages most relevant to a claim
// from a single document library.
type Retriever interface {
	Retrieve(ctx context.Context, query, libraryID string, k int) ([]EvidencePassage, error)
}

// PipelineConfig tunes the orchestrator. Zero values fall back to
// defaults.
type PipelineConfig struct {
	// TopK is the number of evidence passages retrieved per claim.
	TopK int
	// Workers bounds how many claims are verified concurrently.
	Workers int
}

// Pipeline runs the full verification flow: segment the input into
// claims, then for each claim extract structure, retrieve evidence,
// compare, and generate a verdict.
//
// # Description
//
// Claims are processed concurrently under a bounded worker pool, but
// the output preserves input order: each worker writes its verdict
// into a preallocated slot indexed by the claim's position. A
// retrieval or hard LLM failure on any claim fails the whole request;
// partial results are never returned.
//
// # Thread Safety
//
// Safe for concurrent use; each Verify call owns its own result slice.
type Pipeline struct {
	segmenter  *Segmenter
	extractor  *Extractor
	retriever  Retriever
	comparator *Comparator
	verdicts   *VerdictGenerator
	topK       int
	workers    int
}

// NewPipeline assembles the orchestrator. Panics if any stage is nil
// (fail-fast for programming errors).
func NewPipeline(
	segmenter *Segmenter,
	extractor *Extractor,
	retriever Retriever,
	comparator *Comparator,
	verdicts *VerdictGenerator,
	cfg PipelineConfig,
) *Pipeline {
	if segmenter == nil || extractor == nil || retriever == nil || comparator == nil || verdicts == nil {
		panic("NewPipeline: all stages must be non-nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pipeline{
		segmenter:  segmenter,
		extractor:  extractor,
		retriever:  retriever,
		comparator: comparator,
		verdicts:   verdicts,
		topK:       topK,
		workers:    workers,
	}
}

// Verify runs the pipeline over a free-form text against one document
// library.
//
// # Inputs
//
//   - ctx: Cancels all in-flight claim work when done.
//   - text: The text to segment and verify.
//   - libraryID: The document library to retrieve evidence from.
//
// # Outputs
//
//   - *VerificationResult: Per-claim verdicts in input order plus the
//     aggregate trust score. Text with no verifiable claims yields an
//     empty result with InsufficientEvidence set.
//   - error: Non-nil on retrieval or hard LLM failure.
func (p *Pipeline) Verify(ctx context.Context, text, libraryID string) (*VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("library.id", libraryID))

	claims := p.segmenter.Segment(text)
	span.SetAttributes(attribute.Int("claims.count", len(claims)))
	slog.Info("Segmented input text", "claims", len(claims), "library_id", libraryID)

	if len(claims) == 0 {
		return &VerificationResult{
			TrustScore:           0.0,
			InsufficientEvidence: true,
			Claims:               []ClaimVerdict{},
		}, nil
	}

	verdicts := make([]ClaimVerdict, len(claims))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for i, claim := range claims {
		group.Go(func() error {
			verdict, err := p.verifyClaim(groupCtx, claim, libraryID)
			if err != nil {
				return err
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := aggregate(verdicts)
	span.SetAttributes(attribute.Float64("trust.score", result.TrustScore))
	return result, nil
}

// verifyClaim runs the per-claim stages: extract, retrieve, compare,
// decide.
func (p *Pipeline) verifyClaim(ctx context.Context, claim, libraryID string) (ClaimVerdict, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.verifyClaim")
	defer span.End()

	signal := p.extractor.Extract(claim)

	passages, err := p.retriever.Retrieve(ctx, claim, libraryID, p.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClaimVerdict{}, err
	}

	var comparison ComparisonResult
	if len(passages) > 0 {
		evidence := p.extractor.Extract(passages[0].Text)
		comparison = p.comparator.Compare(signal, evidence)
	}

	verdict, err := p.verdicts.Generate(ctx, signal, passages, comparison)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClaimVerdict{}, err
	}
	span.SetAttributes(attribute.String("claim.verdict", string(verdict.Verdict)))
	return verdict, nil
}

// aggregate folds per-claim verdicts into the final result. The trust
// score is the confidence-weighted mean over claims with evidence;
// NO_EVIDENCE claims contribute to neither numerator nor denominator.
func aggregate(verdicts []ClaimVerdict) *VerificationResult {
	result := &VerificationResult{
		Claims:      verdicts,
		TotalClaims: len(verdicts),
	}

	var weighted, totalConfidence float64
	for _, v := range verdicts {
		switch v.Verdict {
		case VerdictSupported:
			result.SupportedCount++
			weighted += weightSupported * v.Confidence
			totalConfidence += v.Confidence
		case VerdictPartiallySupported:
			result.PartialCount++
			weighted += weightPartiallySupported * v.Confidence
			totalConfidence += v.Confidence
		case VerdictContradicted:
			result.ContradictedCount++
			weighted += weightContradicted * v.Confidence
			totalConfidence += v.Confidence
		case VerdictNoEvidence:
			result.NoEvidenceCount++
		}
	}

	if totalConfidence > 0 {
		result.TrustScore = weighted / totalConfidence
	} else {
		result.TrustScore = 0.0
		result.InsufficientEvidence = true
	}
	return result
}
