// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/moats-ai/moats/services/llm"
)

// =============================================================================
// Verdict Generator
// =============================================================================

// confNoEvidence is the confidence attached to a NO_EVIDENCE verdict
// when retrieval found nothing above the relevance gate.
const confNoEvidence = 0.95

// fallbackDefaultConfidence is used when the LLM completion carries no
// parseable confidence line.
const fallbackDefaultConfidence = 0.5

// maxFallbackPassages bounds how many evidence passages go into the
// fallback prompt.
const maxFallbackPassages = 3

const noEvidenceReason = "No relevant passages found in your documents."
const fallbackDefaultReason = "Could not determine from evidence."

// VerdictGenerator converts a comparison result (or, when the
// comparison is inconclusive, an LLM completion) into a standardized
// ClaimVerdict.
//
// # Description
//
// The deterministic path maps comparator outcomes straight to
// verdicts, carrying the comparator's confidence and explanation
// verbatim and citing the top evidence passage. Only a no_comparison
// outcome invokes the LLM, and the completion is parsed permissively:
// a malformed or missing VERDICT line defaults to NO_EVIDENCE at low
// confidence rather than failing the claim. A hard provider failure
// (no completion at all) is infrastructure and propagates as
// *LLMError.
//
// # Thread Safety
//
// Safe for concurrent use.
type VerdictGenerator struct {
	llmClient llm.LLMClient
}

// NewVerdictGenerator creates a VerdictGenerator. Panics if llmClient
// is nil (fail-fast for programming errors).
func NewVerdictGenerator(llmClient llm.LLMClient) *VerdictGenerator {
	if llmClient == nil {
		panic("NewVerdictGenerator: llmClient must not be nil")
	}
	return &VerdictGenerator{llmClient: llmClient}
}

// Generate produces the verdict for one claim.
//
// # Inputs
//
//   - ctx: Context for the potential LLM call.
//   - claim: The claim's structured signals.
//   - passages: Retrieved evidence, best first. May be empty.
//   - comparison: The comparator's result for claim vs passages[0].
//
// # Outputs
//
//   - ClaimVerdict: The immutable per-claim record.
//   - error: Non-nil only for a hard LLM provider failure.
func (g *VerdictGenerator) Generate(
	ctx context.Context,
	claim StructuredSignal,
	passages []EvidencePassage,
	comparison ComparisonResult,
) (ClaimVerdict, error) {
	if len(passages) == 0 {
		return ClaimVerdict{
			ClaimText:  claim.Text,
			Verdict:    VerdictNoEvidence,
			Confidence: confNoEvidence,
			Reason:     noEvidenceReason,
			UsedLLM:    false,
		}, nil
	}

	best := passages[0]

	switch comparison.Result {
	case ComparisonMatch:
		return g.deterministicVerdict(claim, best, VerdictSupported, comparison), nil
	case ComparisonContradiction:
		return g.deterministicVerdict(claim, best, VerdictContradicted, comparison), nil
	case ComparisonPartial:
		return g.deterministicVerdict(claim, best, VerdictPartiallySupported, comparison), nil
	}

	return g.llmVerdict(ctx, claim, passages)
}

// deterministicVerdict maps a conclusive comparison onto a verdict
// record, citing the top evidence passage.
func (g *VerdictGenerator) deterministicVerdict(
	claim StructuredSignal,
	best EvidencePassage,
	verdict Verdict,
	comparison ComparisonResult,
) ClaimVerdict {
	return ClaimVerdict{
		ClaimText:  claim.Text,
		Verdict:    verdict,
		Confidence: comparison.Confidence,
		Evidence: &EvidenceRef{
			Text:   best.Text,
			Source: best.Source,
			Page:   best.Page,
		},
		Reason:            comparison.Explanation,
		UsedLLM:           false,
		ContradictionType: comparison.ContradictionType,
	}
}

// llmVerdict asks the LLM to judge a claim the comparator could not.
func (g *VerdictGenerator) llmVerdict(
	ctx context.Context,
	claim StructuredSignal,
	passages []EvidencePassage,
) (ClaimVerdict, error) {
	prompt := buildFallbackPrompt(claim.Text, passages)

	temperature := float32(0.0)
	maxTokens := 300
	response, err := g.llmClient.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return ClaimVerdict{}, &LLMError{Err: err}
	}

	verdict, confidence, reason := parseFallbackResponse(response)
	slog.Debug("LLM fallback verdict", "claim", claim.Text, "verdict", verdict, "confidence", confidence)

	best := passages[0]
	return ClaimVerdict{
		ClaimText:  claim.Text,
		Verdict:    verdict,
		Confidence: confidence,
		Evidence: &EvidenceRef{
			Text:   best.Text,
			Source: best.Source,
			Page:   best.Page,
		},
		Reason:  reason,
		UsedLLM: true,
	}, nil
}

// buildFallbackPrompt renders the claim and up to three evidence
// passages, each tagged with source and page, plus the required
// three-line response format.
func buildFallbackPrompt(claimText string, passages []EvidencePassage) string {
	var evidence strings.Builder
	for i, p := range passages {
		if i >= maxFallbackPassages {
			break
		}
		page := "?"
		if p.Page != nil {
			page = strconv.Itoa(*p.Page)
		}
		fmt.Fprintf(&evidence, "[%s, page %s]: %s\n\n", p.Source, page, p.Text)
	}

	return fmt.Sprintf(`You are verifying a claim against source documents.

CLAIM: %s

EVIDENCE FROM DOCUMENTS:
%s
Based on the evidence, determine:
1. Does the evidence SUPPORT, CONTRADICT, or PARTIALLY SUPPORT the claim?
2. If there's no relevant evidence, say NO_EVIDENCE.

Respond in this exact format:
VERDICT: [SUPPORTED/PARTIALLY_SUPPORTED/CONTRADICTED/NO_EVIDENCE]
CONFIDENCE: [0.0-1.0]
REASON: [One sentence explaining why]
`, claimText, evidence.String())
}

// parseFallbackResponse parses the three-line completion format
// permissively. Missing or unparseable VERDICT lines default to
// NO_EVIDENCE at low confidence; an unparseable CONFIDENCE value is
// ignored and the prior value retained.
func parseFallbackResponse(response string) (Verdict, float64, string) {
	verdict := VerdictNoEvidence
	confidence := fallbackDefaultConfidence
	reason := fallbackDefaultReason

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			value := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:")))
			switch value {
			case "SUPPORTED":
				verdict = VerdictSupported
			case "PARTIALLY_SUPPORTED", "PARTIAL":
				verdict = VerdictPartiallySupported
			case "CONTRADICTED":
				verdict = VerdictContradicted
			case "NO_EVIDENCE":
				verdict = VerdictNoEvidence
			}
		case strings.HasPrefix(line, "CONFIDENCE:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				confidence = clamp01(parsed)
			}
		case strings.HasPrefix(line, "REASON:"):
			if value := strings.TrimSpace(strings.TrimPrefix(line, "REASON:")); value != "" {
				reason = value
			}
		}
	}

	return verdict, confidence, reason
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
