// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"strings"

	"github.com/moats-ai/moats/services/verifier/nlp"
)

// =============================================================================
// Segmenter
// =============================================================================

// minClaimChars and minClaimTokens drop fragments too short to be
// checkable statements.
const (
	minClaimChars  = 12
	minClaimTokens = 3
)

// commandStarters are leading words that mark a sentence as an
// instruction to an assistant rather than a factual claim.
var commandStarters = map[string]bool{
	"write":     true,
	"summarize": true,
	"list":      true,
	"explain":   true,
	"show":      true,
	"tell":      true,
	"give":      true,
	"create":    true,
	"generate":  true,
	"draft":     true,
}

// Segmenter splits raw input text into independent, checkable claim
// strings.
//
// # Description
//
// Input may contain prose, lists, or markdown. The segmenter splits on
// newlines first (list items and headings are their own units), then
// on sentence boundaries within each block, and filters out fragments
// that are not declarative statements: interrogatives, imperative
// commands, and fragments below a minimum length. Claim text is never
// mutated, and output order matches order of appearance in the input;
// downstream citation rendering depends on that order being stable.
//
// # Thread Safety
//
// Safe for concurrent use; the only state is the shared NLP handle.
type Segmenter struct {
	tagger *nlp.Tagger
}

// NewSegmenter creates a Segmenter backed by the shared NLP handle.
// Panics if tagger is nil (fail-fast for programming errors).
func NewSegmenter(tagger *nlp.Tagger) *Segmenter {
	if tagger == nil {
		panic("NewSegmenter: tagger must not be nil")
	}
	return &Segmenter{tagger: tagger}
}

// Segment returns the candidate factual claims in text, in order of
// appearance. Empty or whitespace-only input yields an empty slice,
// not an error.
func (s *Segmenter) Segment(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var claims []string
	for _, block := range strings.Split(text, "\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		sentences, err := s.tagger.Sentences(block)
		if err != nil || len(sentences) == 0 {
			// Segmentation failure degrades to one sentence per block.
			sentences = []string{block}
		}

		for _, sentence := range sentences {
			sentence = strings.TrimSpace(sentence)
			if isClaimCandidate(sentence) {
				claims = append(claims, sentence)
			}
		}
	}
	return claims
}

// isClaimCandidate filters out fragments that are not declarative
// statements: too short, interrogative, imperative, or mostly
// non-alphanumeric (table rules, separators, markdown noise).
func isClaimCandidate(sentence string) bool {
	if len(sentence) < minClaimChars {
		return false
	}
	if strings.HasSuffix(sentence, "?") {
		return false
	}

	tokens := strings.Fields(sentence)
	if len(tokens) < minClaimTokens {
		return false
	}

	first := strings.ToLower(strings.Trim(tokens[0], "\"'`([{“”])"))
	if commandStarters[first] {
		return false
	}

	alnum := 0
	for _, r := range sentence {
		if isAlnum(r) {
			alnum++
		}
	}
	return float64(alnum)/float64(len(sentence)) >= 0.5
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
