// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericSignal(raw string, value float64, unit string, conf float64) StructuredSignal {
	return StructuredSignal{
		Text:          raw,
		NumericValues: []NumericValue{{Raw: raw, Value: value, Unit: unit, Confidence: conf}},
		Polarity:      PolarityPositive,
	}
}

func temporalSignal(raw string, start, end time.Time, conf float64) StructuredSignal {
	return StructuredSignal{
		Text:           raw,
		TemporalValues: []TemporalValue{{Raw: raw, Start: start, End: end, Confidence: conf}},
		Polarity:       PolarityPositive,
	}
}

func TestComparator_NumericMatchWithinTolerance(t *testing.T) {
	comparator := NewComparator(0)

	claim := numericSignal("$5M", 5e6, UnitUSD, 0.95)
	evidence := numericSignal("$4.8 million", 4.8e6, UnitUSD, 0.95)

	result := comparator.Compare(claim, evidence)

	// |5.0 - 4.8| / 4.8 is about 4.2%, inside the 5% tolerance.
	assert.Equal(t, ComparisonMatch, result.Result)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.Contains(t, result.Explanation, "Values match")
}

func TestComparator_NumericContradiction(t *testing.T) {
	comparator := NewComparator(0)

	claim := numericSignal("$5M", 5e6, UnitUSD, 0.95)
	evidence := numericSignal("$4M", 4e6, UnitUSD, 0.95)

	result := comparator.Compare(claim, evidence)

	assert.Equal(t, ComparisonContradiction, result.Result)
	assert.Equal(t, ContradictionMagnitude, result.ContradictionType)
	assert.InDelta(t, 0.95*0.95, result.Confidence, 1e-9)
	assert.Contains(t, result.Explanation, "Values differ")
}

func TestComparator_NumericUnitMismatchSkipsToNextStrategy(t *testing.T) {
	comparator := NewComparator(0)

	claim := numericSignal("15%", 0.15, UnitPercent, 0.98)
	evidence := numericSignal("$5M", 5e6, UnitUSD, 0.95)

	// Unit mismatch is inconclusive for the numeric strategy; both
	// sides are positive, so polarity concludes instead.
	result := comparator.Compare(claim, evidence)

	assert.Equal(t, ComparisonMatch, result.Result)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
	assert.Equal(t, "Statement polarity matches", result.Explanation)
}

func TestComparator_NumericUnitMismatchExplanation(t *testing.T) {
	comparator := NewComparator(0)

	claim := numericSignal("3 million", 3e6, UnitNone, 0.90)
	evidence := numericSignal("$5M", 5e6, UnitUSD, 0.95)

	result := comparator.compareNumeric(claim, evidence)

	assert.Equal(t, ComparisonNone, result.Result)
	assert.Equal(t, "Different units: none vs USD", result.Explanation)
}

func TestComparator_NumericZeroEvidence(t *testing.T) {
	comparator := NewComparator(0)

	bothZero := comparator.Compare(
		numericSignal("0%", 0, UnitPercent, 0.98),
		numericSignal("0%", 0, UnitPercent, 0.98),
	)
	assert.Equal(t, ComparisonMatch, bothZero.Result)
	assert.InDelta(t, 0.95, bothZero.Confidence, 1e-9)

	claimNonzero := comparator.Compare(
		numericSignal("15%", 0.15, UnitPercent, 0.98),
		numericSignal("0%", 0, UnitPercent, 0.98),
	)
	assert.Equal(t, ComparisonContradiction, claimNonzero.Result)
	assert.Equal(t, ContradictionMagnitude, claimNonzero.ContradictionType)
	assert.InDelta(t, 0.95, claimNonzero.Confidence, 1e-9)
}

func TestComparator_CustomTolerance(t *testing.T) {
	comparator := NewComparator(0.10)

	claim := numericSignal("$5.4M", 5.4e6, UnitUSD, 0.95)
	evidence := numericSignal("$5M", 5e6, UnitUSD, 0.95)

	result := comparator.Compare(claim, evidence)

	// 8% difference passes under a widened 10% tolerance.
	assert.Equal(t, ComparisonMatch, result.Result)
}

func TestComparator_TemporalMatch(t *testing.T) {
	comparator := NewComparator(0)

	q3 := temporalSignal("Q3 2024",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), 0.95)
	september := temporalSignal("third quarter of 2024",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), 0.95)

	result := comparator.Compare(q3, september)

	assert.Equal(t, ComparisonMatch, result.Result)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
}

func TestComparator_TemporalOverlapPartial(t *testing.T) {
	comparator := NewComparator(0)

	year := temporalSignal("2024",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 0.85)
	q3 := temporalSignal("Q3 2024",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), 0.95)

	result := comparator.Compare(year, q3)

	assert.Equal(t, ComparisonPartial, result.Result)
	assert.Equal(t, ContradictionTemporal, result.ContradictionType)
	assert.InDelta(t, 0.70, result.Confidence, 1e-9)
}

func TestComparator_TemporalDisjointContradiction(t *testing.T) {
	comparator := NewComparator(0)

	q1 := temporalSignal("Q1 2024",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), 0.95)
	q3 := temporalSignal("Q3 2024",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), 0.95)

	result := comparator.Compare(q1, q3)

	assert.Equal(t, ComparisonContradiction, result.Result)
	assert.Equal(t, ContradictionTemporal, result.ContradictionType)
	assert.InDelta(t, 0.95*0.90, result.Confidence, 1e-9)
}

func TestComparator_PolarityContradiction(t *testing.T) {
	comparator := NewComparator(0)

	claim := StructuredSignal{Text: "The launch succeeded", Polarity: PolarityPositive}
	evidence := StructuredSignal{Text: "The launch did not succeed", Polarity: PolarityNegative}

	result := comparator.Compare(claim, evidence)

	assert.Equal(t, ComparisonContradiction, result.Result)
	assert.Equal(t, ContradictionNegation, result.ContradictionType)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
}

func TestComparator_PolaritySkippedWhenUncertain(t *testing.T) {
	comparator := NewComparator(0)

	claim := StructuredSignal{Text: "The launch succeeded", Polarity: PolarityPositive}
	evidence := StructuredSignal{Text: "The launch might succeed", Polarity: PolarityUncertain}

	result := comparator.Compare(claim, evidence)

	assert.Equal(t, ComparisonNone, result.Result)
}

func TestComparator_NumericPrecedesTemporal(t *testing.T) {
	comparator := NewComparator(0)

	claim := numericSignal("$5M", 5e6, UnitUSD, 0.95)
	claim.TemporalValues = []TemporalValue{{
		Raw:   "Q1 2024",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Confidence: 0.95,
	}}
	evidence := numericSignal("$5M", 5e6, UnitUSD, 0.95)
	evidence.TemporalValues = []TemporalValue{{
		Raw:   "Q3 2024",
		Start: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), Confidence: 0.95,
	}}

	// The numeric strategy concludes with a match; the disagreeing
	// temporal signals are never consulted.
	result := comparator.Compare(claim, evidence)

	assert.Equal(t, ComparisonMatch, result.Result)
	assert.Contains(t, result.Explanation, "Values match")
}

func TestComparator_NoSignalsNoComparison(t *testing.T) {
	comparator := NewComparator(0)

	claim := StructuredSignal{Text: "The team shipped the redesign", Polarity: PolarityUncertain}
	evidence := StructuredSignal{Text: "A redesign was discussed", Polarity: PolarityPositive}

	result := comparator.Compare(claim, evidence)

	require.Equal(t, ComparisonNone, result.Result)
	assert.Equal(t, "Cannot compare structurally, requires reasoning", result.Explanation)
	assert.Zero(t, result.Confidence)
}
