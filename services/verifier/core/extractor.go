// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/moats-ai/moats/services/verifier/nlp"
)

// =============================================================================
// Policy Tables
// =============================================================================

// Per-pattern confidence tiers. These reflect pattern specificity and
// are policy constants, not computed values.
const (
	confCurrency  = 0.95
	confPercent   = 0.98
	confMagnitude = 0.90

	confQuarter   = 0.95
	confYear      = 0.85
	confMonthYear = 0.90
	confBareMonth = 0.75

	confBase       = 0.70
	confBonusMoney = 0.10
	confBonusQuart = 0.10
	confBonusSubj  = 0.05
	confExtractCap = 0.95
)

// percentDivisor normalizes percentage values to fractions.
const percentDivisor = 100.0

// magnitudeMultipliers maps magnitude suffixes and words to their
// numeric factor.
var magnitudeMultipliers = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"million":  1e6,
	"b":        1e9,
	"billion":  1e9,
}

// currencyUnits maps currency symbols to the unit carried by the
// extracted value.
var currencyUnits = map[string]string{
	"$": UnitUSD,
	"€": UnitEUR,
	"£": UnitGBP,
}

// quarterRanges maps a quarter number to its month/day boundaries.
var quarterRanges = [5]struct {
	startMonth time.Month
	startDay   int
	endMonth   time.Month
	endDay     int
}{
	{}, // quarters are 1-indexed
	{time.January, 1, time.March, 31},
	{time.April, 1, time.June, 30},
	{time.July, 1, time.September, 30},
	{time.October, 1, time.December, 31},
}

// negationLexicon is the fixed set of negation words. Tokens in this
// set count toward polarity regardless of their syntactic role.
var negationLexicon = map[string]bool{
	"not": true, "no": true, "never": true, "n't": true,
	"none": true, "neither": true, "without": true, "lack": true,
	"fail": true, "failed": true, "unable": true, "deny": true,
	"denied": true, "refuse": true, "refused": true,
}

// hedgeWords mark a span as uncertain when no negation is present.
var hedgeWords = map[string]bool{
	"might": true, "may": true, "could": true,
	"possibly": true, "perhaps": true, "likely": true,
}

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// =============================================================================
// Patterns
// =============================================================================

var (
	currencyPattern = regexp.MustCompile(`([$€£])\s*(\d+(?:\.\d+)?)\s*([KkMmBb](?:illion)?)?`)
	percentPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	bareMagPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(million|billion|thousand)`)

	quarterPattern   = regexp.MustCompile(`Q([1-4])\s*(\d{4})`)
	yearPattern      = regexp.MustCompile(`\b(20\d{2})\b`)
	monthYearPattern = regexp.MustCompile(`(?i)(january|february|march|april|may|june|july|august|september|october|november|december)\s*(\d{4})`)

	// Case-sensitive on purpose: the modal "may" must not read as a
	// month. Matched only when no 4-digit year follows.
	bareMonthPattern = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\b(\s*\d{4})?`)
)

// =============================================================================
// Extractor
// =============================================================================

// Extractor converts a text span into a StructuredSignal.
//
// # Description
//
// Extraction is a pure function of the input text for a given NLP
// model version: no external calls, deterministic output. Both claim
// text and evidence text go through the same extractor.
//
// Malformed or untaggable input is recovered locally: the span comes
// back signal-free (empty numeric/temporal lists, uncertain polarity)
// rather than failing the claim.
//
// # Thread Safety
//
// Safe for concurrent use.
type Extractor struct {
	tagger *nlp.Tagger

	// now supplies the year for bare month names. Injectable so tests
	// are deterministic.
	now func() time.Time
}

// NewExtractor creates an Extractor backed by the shared NLP handle.
// Panics if tagger is nil (fail-fast for programming errors).
func NewExtractor(tagger *nlp.Tagger) *Extractor {
	if tagger == nil {
		panic("NewExtractor: tagger must not be nil")
	}
	return &Extractor{tagger: tagger, now: time.Now}
}

// Extract returns the structured signals of a single text span.
func (e *Extractor) Extract(text string) StructuredSignal {
	tokens, err := e.tagger.Tokens(text)
	if err != nil {
		// Untaggable span: keep the regex-extractable signals, treat
		// the linguistic ones as absent.
		tokens = nil
	}

	numerics := extractNumerics(text)
	temporals := e.extractTemporals(text)
	subject := extractSubject(tokens)
	negations := findNegations(tokens)
	polarity := classifyPolarity(tokens, negations, err != nil)

	return StructuredSignal{
		Text:                 text,
		NumericValues:        numerics,
		TemporalValues:       temporals,
		Subject:              subject,
		Polarity:             polarity,
		NegationWords:        negations,
		ExtractionConfidence: extractionConfidence(text, subject),
	}
}

// =============================================================================
// Numeric Extraction
// =============================================================================

// span is a half-open [start, end) byte range in the source text.
type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

func overlapsAny(s span, consumed []span) bool {
	for _, c := range consumed {
		if s.overlaps(c) {
			return true
		}
	}
	return false
}

type positioned[T any] struct {
	start int
	value T
}

// extractNumerics applies the numeric patterns in fixed priority
// order: currency, then percent, then bare magnitude. A span matched
// by an earlier rule is never re-matched by a later one, and the final
// list is ordered by position of occurrence.
func extractNumerics(text string) []NumericValue {
	var consumed []span
	var found []positioned[NumericValue]

	for _, m := range currencyPattern.FindAllStringSubmatchIndex(text, -1) {
		matchSpan := span{m[0], m[1]}
		raw := text[m[0]:m[1]]
		symbol := text[m[2]:m[3]]
		value, err := strconv.ParseFloat(text[m[4]:m[5]], 64)
		if err != nil {
			continue
		}
		if m[6] >= 0 {
			suffix := strings.ToLower(text[m[6]:m[7]])
			if mult, ok := magnitudeMultipliers[suffix[:1]]; ok {
				value *= mult
			}
		}
		unit, ok := currencyUnits[symbol]
		if !ok {
			unit = UnitUSD
		}
		consumed = append(consumed, matchSpan)
		found = append(found, positioned[NumericValue]{m[0], NumericValue{
			Raw: raw, Value: value, Unit: unit, Confidence: confCurrency,
		}})
	}

	for _, m := range percentPattern.FindAllStringSubmatchIndex(text, -1) {
		matchSpan := span{m[0], m[1]}
		if overlapsAny(matchSpan, consumed) {
			continue
		}
		value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		consumed = append(consumed, matchSpan)
		found = append(found, positioned[NumericValue]{m[0], NumericValue{
			Raw:        text[m[0]:m[1]],
			Value:      value / percentDivisor,
			Unit:       UnitPercent,
			Confidence: confPercent,
		}})
	}

	for _, m := range bareMagPattern.FindAllStringSubmatchIndex(text, -1) {
		matchSpan := span{m[0], m[1]}
		if overlapsAny(matchSpan, consumed) {
			continue
		}
		value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		word := strings.ToLower(text[m[4]:m[5]])
		consumed = append(consumed, matchSpan)
		found = append(found, positioned[NumericValue]{m[0], NumericValue{
			Raw:        text[m[0]:m[1]],
			Value:      value * magnitudeMultipliers[word],
			Unit:       UnitNone,
			Confidence: confMagnitude,
		}})
	}

	return sortByPosition(found)
}

// =============================================================================
// Temporal Extraction
// =============================================================================

// extractTemporals applies the temporal patterns in fixed priority
// order: quarters, then bare years, then month+year, then bare month
// names. Later rules skip spans consumed by earlier ones, and a bare
// year already covered by a quarter expression is dropped. The final
// list is ordered by position of occurrence so the primary value is
// the leftmost expression.
func (e *Extractor) extractTemporals(text string) []TemporalValue {
	var consumed []span
	var found []positioned[TemporalValue]
	quarterYears := map[int]bool{}

	for _, m := range quarterPattern.FindAllStringSubmatchIndex(text, -1) {
		quarter, _ := strconv.Atoi(text[m[2]:m[3]])
		year, _ := strconv.Atoi(text[m[4]:m[5]])
		qr := quarterRanges[quarter]
		quarterYears[year] = true
		consumed = append(consumed, span{m[0], m[1]})
		found = append(found, positioned[TemporalValue]{m[0], TemporalValue{
			Raw:        text[m[0]:m[1]],
			Start:      time.Date(year, qr.startMonth, qr.startDay, 0, 0, 0, 0, time.UTC),
			End:        time.Date(year, qr.endMonth, qr.endDay, 0, 0, 0, 0, time.UTC),
			Confidence: confQuarter,
		}})
	}

	for _, m := range yearPattern.FindAllStringSubmatchIndex(text, -1) {
		matchSpan := span{m[0], m[1]}
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		if quarterYears[year] || overlapsAny(matchSpan, consumed) {
			continue
		}
		consumed = append(consumed, matchSpan)
		found = append(found, positioned[TemporalValue]{m[0], TemporalValue{
			Raw:        text[m[0]:m[1]],
			Start:      time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:        time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			Confidence: confYear,
		}})
	}

	for _, m := range monthYearPattern.FindAllStringSubmatchIndex(text, -1) {
		month := monthNumbers[strings.ToLower(text[m[2]:m[3]])]
		year, _ := strconv.Atoi(text[m[4]:m[5]])
		consumed = append(consumed, span{m[0], m[1]})
		found = append(found, positioned[TemporalValue]{m[0], TemporalValue{
			Raw:        text[m[0]:m[1]],
			Start:      time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
			End:        endOfMonth(year, month),
			Confidence: confMonthYear,
		}})
	}

	for _, m := range bareMonthPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[4] >= 0 {
			// A trailing year means the month+year rule owns this span.
			continue
		}
		matchSpan := span{m[0], m[1]}
		if overlapsAny(matchSpan, consumed) {
			continue
		}
		month := monthNumbers[strings.ToLower(text[m[2]:m[3]])]
		year := e.now().Year()
		consumed = append(consumed, matchSpan)
		found = append(found, positioned[TemporalValue]{m[0], TemporalValue{
			Raw:        text[m[0]:m[1]],
			Start:      time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
			End:        endOfMonth(year, month),
			Confidence: confBareMonth,
		}})
	}

	return sortByPosition(found)
}

// endOfMonth returns the last day of the given month, leap-aware.
func endOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// sortByPosition restores left-to-right order of occurrence after the
// rule-ordered matching passes. Insertion sort: the lists are tiny.
func sortByPosition[T any](found []positioned[T]) []T {
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].start < found[j-1].start; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	out := make([]T, 0, len(found))
	for _, f := range found {
		out = append(out, f.value)
	}
	return out
}

// =============================================================================
// Subject, Polarity, Confidence
// =============================================================================

// extractSubject approximates the nominal subject: the first
// noun-tagged token before the first verb, widened to the contiguous
// determiner/adjective/noun run around it. Empty when no subject-role
// token exists.
func extractSubject(tokens []nlp.Token) string {
	firstVerb := len(tokens)
	for i, tok := range tokens {
		if strings.HasPrefix(tok.Tag, "VB") {
			firstVerb = i
			break
		}
	}

	subjIdx := -1
	for i := 0; i < firstVerb; i++ {
		if strings.HasPrefix(tokens[i].Tag, "NN") {
			subjIdx = i
			break
		}
	}
	if subjIdx < 0 {
		return ""
	}

	start := subjIdx
	for start > 0 && isNounPhraseTag(tokens[start-1].Tag) {
		start--
	}
	end := subjIdx
	for end+1 < firstVerb && strings.HasPrefix(tokens[end+1].Tag, "NN") {
		end++
	}

	parts := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		parts = append(parts, tokens[i].Text)
	}
	return strings.Join(parts, " ")
}

func isNounPhraseTag(tag string) bool {
	switch tag {
	case "DT", "PRP$", "JJ", "JJR", "JJS", "CD":
		return true
	}
	return strings.HasPrefix(tag, "NN")
}

// findNegations returns the matched negation tokens in order of
// appearance.
func findNegations(tokens []nlp.Token) []string {
	var negations []string
	for _, tok := range tokens {
		if negationLexicon[strings.ToLower(tok.Text)] {
			negations = append(negations, tok.Text)
		}
	}
	return negations
}

// classifyPolarity applies the fixed decision table: odd negation
// count is negative, even nonzero is positive (double negation
// cancels), zero with a hedge word is uncertain, otherwise positive.
// An untaggable span is uncertain.
func classifyPolarity(tokens []nlp.Token, negations []string, untaggable bool) Polarity {
	if untaggable {
		return PolarityUncertain
	}
	if len(negations)%2 == 1 {
		return PolarityNegative
	}
	if len(negations) > 0 {
		return PolarityPositive
	}
	for _, tok := range tokens {
		if hedgeWords[strings.ToLower(tok.Text)] {
			return PolarityUncertain
		}
	}
	return PolarityPositive
}

// extractionConfidence starts at the base tier and rewards the
// patterns that pin a claim down most: currency amounts, quarter
// expressions, and an identifiable subject.
func extractionConfidence(text, subject string) float64 {
	conf := confBase
	if currencyPattern.MatchString(text) {
		conf += confBonusMoney
	}
	if quarterPattern.MatchString(text) {
		conf += confBonusQuart
	}
	if subject != "" {
		conf += confBonusSubj
	}
	if conf > confExtractCap {
		conf = confExtractCap
	}
	return conf
}
