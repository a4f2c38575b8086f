// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package core implements the claim verification pipeline: claim
// segmentation, structured signal extraction, evidence comparison, and
// verdict synthesis with an LLM-reasoning fallback.
//
// The pipeline is a stateless function of (text, library): it holds no
// mutable state between Verify calls, and every external dependency
// (retrieval, LLM backend, NLP model) is injected at construction.
package core

import "time"

// =============================================================================
// Numeric Signals
// =============================================================================

// Numeric units produced by the extractor. Currency values carry the
// ISO code of the matched symbol; magnitudes without a unit carry
// UnitNone and only compare against other unit-less values.
const (
	UnitUSD     = "USD"
	UnitEUR     = "EUR"
	UnitGBP     = "GBP"
	UnitPercent = "percent"
	UnitNone    = ""
)

// NumericValue is one extracted numeric signal.
//
// # Fields
//
//   - Raw: The matched span exactly as it appeared in the text.
//   - Value: Normalized value (magnitude suffixes multiplied out,
//     percentages divided by 100).
//   - Unit: One of the Unit* constants above.
//   - Confidence: Pattern-specificity tier, a policy constant.
type NumericValue struct {
	Raw        string  `json:"raw"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// TemporalValue is one extracted temporal signal, always normalized to
// a closed date range, never a single instant.
type TemporalValue struct {
	Raw        string    `json:"raw"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Confidence float64   `json:"confidence"`
}

// =============================================================================
// Polarity
// =============================================================================

// Polarity classifies whether a span asserts, denies, or hedges.
type Polarity string

const (
	PolarityPositive  Polarity = "positive"
	PolarityNegative  Polarity = "negative"
	PolarityUncertain Polarity = "uncertain"
)

// =============================================================================
// Structured Signal
// =============================================================================

// StructuredSignal is the full extraction result for one text span.
//
// # Description
//
// Produced by the Extractor for both claim text and evidence text; the
// two sides have identical shape and are owned by whichever call site
// requested the extraction.
//
// # Invariants
//
// NumericValues and TemporalValues preserve left-to-right order of
// occurrence in Text. The first element of each list is the "primary"
// value the comparator uses.
type StructuredSignal struct {
	Text                 string          `json:"text"`
	NumericValues        []NumericValue  `json:"numeric_values"`
	TemporalValues       []TemporalValue `json:"temporal_values"`
	Subject              string          `json:"subject,omitempty"`
	Polarity             Polarity        `json:"polarity"`
	NegationWords        []string        `json:"negation_words"`
	ExtractionConfidence float64         `json:"extraction_confidence"`
}

// =============================================================================
// Evidence
// =============================================================================

// EvidencePassage is one retrieved chunk of library text considered as
// potential support or contradiction for a claim. Immutable once
// retrieved.
//
// # Fields
//
//   - Text: The passage content.
//   - Source: Document identifier (title or filename).
//   - Page: Page number within the source, when the ingester knew it.
//   - RelevanceScore: Final relevance after reranking (or the raw
//     vector certainty when no reranker is configured).
type EvidencePassage struct {
	Text           string  `json:"text"`
	Source         string  `json:"source"`
	Page           *int    `json:"page,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// =============================================================================
// Comparison
// =============================================================================

// ComparisonOutcome is the typed result of a structural comparison.
type ComparisonOutcome string

const (
	ComparisonMatch         ComparisonOutcome = "match"
	ComparisonContradiction ComparisonOutcome = "contradiction"
	ComparisonPartial       ComparisonOutcome = "partial"
	ComparisonNone          ComparisonOutcome = "no_comparison"
)

// ContradictionType names which signal category produced a
// contradiction or partial result.
type ContradictionType string

const (
	ContradictionMagnitude ContradictionType = "magnitude"
	ContradictionTemporal  ContradictionType = "temporal"
	ContradictionNegation  ContradictionType = "negation"
)

// ComparisonResult is the comparator's tagged-union return value.
//
// ComparisonNone is a defined outcome, not an error: it routes the
// claim to the LLM fallback. Keeping it as an explicit variant lets
// callers branch without control-flow exceptions.
type ComparisonResult struct {
	Result            ComparisonOutcome `json:"result"`
	ContradictionType ContradictionType `json:"contradiction_type,omitempty"`
	Confidence        float64           `json:"confidence"`
	Explanation       string            `json:"explanation"`
}

// =============================================================================
// Verdicts
// =============================================================================

// Verdict is the per-claim outcome relative to the supplied library.
// It is support/contradiction against the library, never absolute
// truth.
type Verdict string

const (
	VerdictSupported          Verdict = "SUPPORTED"
	VerdictPartiallySupported Verdict = "PARTIALLY_SUPPORTED"
	VerdictContradicted       Verdict = "CONTRADICTED"
	VerdictNoEvidence         Verdict = "NO_EVIDENCE"
)

// EvidenceRef is the citation carried by a ClaimVerdict.
type EvidenceRef struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
}

// ClaimVerdict is the immutable per-claim record in a
// VerificationResult. Created once per claim, never mutated.
type ClaimVerdict struct {
	ClaimText         string            `json:"claim"`
	Verdict           Verdict           `json:"verdict"`
	Confidence        float64           `json:"confidence"`
	Evidence          *EvidenceRef      `json:"evidence,omitempty"`
	Reason            string            `json:"reason"`
	UsedLLM           bool              `json:"used_llm"`
	ContradictionType ContradictionType `json:"contradiction_type,omitempty"`
}

// VerificationResult is the aggregate output of one verify request.
//
// # Fields
//
//   - TrustScore: Confidence-weighted aggregate over verdicts,
//     excluding NO_EVIDENCE claims from numerator and denominator.
//   - InsufficientEvidence: True when no claim contributed to the
//     trust score (zero claims, or all NO_EVIDENCE). Callers should
//     render this case as "insufficient evidence" rather than as a
//     numeric score of zero support.
//   - Claims: Verdicts in the segmenter's output order.
type VerificationResult struct {
	TrustScore           float64        `json:"trust_score"`
	InsufficientEvidence bool           `json:"insufficient_evidence"`
	Claims               []ClaimVerdict `json:"claims"`
	TotalClaims          int            `json:"total_claims"`
	SupportedCount       int            `json:"supported_count"`
	PartialCount         int            `json:"partial_count"`
	ContradictedCount    int            `json:"contradicted_count"`
	NoEvidenceCount      int            `json:"no_evidence_count"`
}
