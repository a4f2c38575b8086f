// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nlp wraps the prose NLP library behind a small, long-lived
// handle used by the verification core.
//
// The extractor and segmenter only need two operations: sentence
// segmentation and part-of-speech tagged tokens. Keeping them behind
// Tagger means the rest of the core never imports prose directly and
// tests can run against the same deterministic model the service uses.
package nlp

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// Token is a single tagged token from a text span.
//
// # Fields
//
//   - Text: The token text as it appeared in the span.
//   - Tag: Penn Treebank part-of-speech tag (e.g. "NN", "VBD", "RB").
type Token struct {
	Text string
	Tag  string
}

// Tagger is a process-wide handle over the prose English model.
//
// # Description
//
// Construct one Tagger at startup and pass it explicitly into the
// components that need it. The underlying model is immutable after
// load, so a single Tagger is safe for concurrent use.
type Tagger struct{}

// NewTagger creates the shared NLP handle.
//
// The prose model data is embedded in the library, so this cannot fail
// at runtime today; the error return is kept so callers are already
// correct if model loading ever becomes configurable.
func NewTagger() (*Tagger, error) {
	return &Tagger{}, nil
}

// Tokens returns the tagged tokens of a single text span.
//
// # Inputs
//
//   - text: The span to tag. Whitespace-only input yields no tokens.
//
// # Outputs
//
//   - []Token: Tokens in order of appearance.
//   - error: Non-nil if the tagger could not process the span. Callers
//     in the extraction path treat this as "no linguistic signal", not
//     as a failed claim.
func (t *Tagger) Tokens(text string) ([]Token, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	proseTokens := doc.Tokens()
	tokens := make([]Token, 0, len(proseTokens))
	for _, tok := range proseTokens {
		tokens = append(tokens, Token{Text: tok.Text, Tag: tok.Tag})
	}
	return tokens, nil
}

// Sentences splits a text block into sentences.
//
// # Inputs
//
//   - text: The block to segment. Whitespace-only input yields nil.
//
// # Outputs
//
//   - []string: Sentence texts in order of appearance.
//   - error: Non-nil if segmentation failed. The segmenter falls back
//     to treating the block as a single sentence.
func (t *Tagger) Sentences(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out, nil
}
