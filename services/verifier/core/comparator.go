// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package core

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// Comparator
// =============================================================================

// DefaultNumericTolerance is the relative difference under which two
// numeric values count as matching.
const DefaultNumericTolerance = 0.05

// nearZero is the absolute-value threshold below which an evidence
// value is treated as zero, avoiding division by it.
const nearZero = 1e-10

// temporalSlackDays is the boundary slack for a temporal match: both
// the start and end deltas must be within this many days.
const temporalSlackDays = 7

// Fixed confidence tiers for comparisons that do not inherit the
// extraction confidences of their inputs.
const (
	confZeroCompare        = 0.95
	confTemporalPartial    = 0.70
	confPolarityMatch      = 0.75 // deliberately below structural matches
	confPolarityContradict = 0.85

	contradictionScale = 0.95
	temporalScale      = 0.90
)

// Comparator compares a claim's structured signals against an evidence
// passage's structured signals.
//
// # Description
//
// Strategies run in a fixed precedence: numeric, then temporal, then
// polarity. The first strategy that concludes (returns anything other
// than no_comparison) wins and later strategies are not attempted —
// even when a later strategy might disagree. That precedence is
// deliberate pipeline behavior; do not combine strategies.
//
// Each strategy only applies when both sides carry the relevant
// signal, and uses each side's primary (first) value.
//
// # Thread Safety
//
// Safe for concurrent use; Comparator is immutable after construction.
type Comparator struct {
	numericTolerance float64
}

// NewComparator creates a Comparator with the given relative numeric
// tolerance. Non-positive tolerance falls back to the default.
func NewComparator(numericTolerance float64) *Comparator {
	if numericTolerance <= 0 {
		numericTolerance = DefaultNumericTolerance
	}
	return &Comparator{numericTolerance: numericTolerance}
}

// Compare runs the strategy precedence over the two signal sets.
func (c *Comparator) Compare(claim, evidence StructuredSignal) ComparisonResult {
	if len(claim.NumericValues) > 0 && len(evidence.NumericValues) > 0 {
		if result := c.compareNumeric(claim, evidence); result.Result != ComparisonNone {
			return result
		}
	}

	if len(claim.TemporalValues) > 0 && len(evidence.TemporalValues) > 0 {
		if result := c.compareTemporal(claim, evidence); result.Result != ComparisonNone {
			return result
		}
	}

	if claim.Polarity != PolarityUncertain && evidence.Polarity != PolarityUncertain {
		if result := c.comparePolarity(claim, evidence); result.Result != ComparisonNone {
			return result
		}
	}

	return ComparisonResult{
		Result:      ComparisonNone,
		Confidence:  0,
		Explanation: "Cannot compare structurally, requires reasoning",
	}
}

// compareNumeric compares the primary numeric values of both sides.
func (c *Comparator) compareNumeric(claim, evidence StructuredSignal) ComparisonResult {
	claimNum := claim.NumericValues[0]
	evidenceNum := evidence.NumericValues[0]

	if claimNum.Unit != evidenceNum.Unit {
		return ComparisonResult{
			Result:      ComparisonNone,
			Confidence:  0,
			Explanation: fmt.Sprintf("Different units: %s vs %s", unitLabel(claimNum.Unit), unitLabel(evidenceNum.Unit)),
		}
	}

	pairConf := math.Min(claimNum.Confidence, evidenceNum.Confidence)

	if math.Abs(evidenceNum.Value) < nearZero {
		if math.Abs(claimNum.Value) < nearZero {
			return ComparisonResult{
				Result:      ComparisonMatch,
				Confidence:  confZeroCompare,
				Explanation: "Both values are zero",
			}
		}
		return ComparisonResult{
			Result:            ComparisonContradiction,
			ContradictionType: ContradictionMagnitude,
			Confidence:        confZeroCompare,
			Explanation:       fmt.Sprintf("Claim: %s, Evidence: ~0", claimNum.Raw),
		}
	}

	diff := math.Abs(claimNum.Value-evidenceNum.Value) / math.Abs(evidenceNum.Value)

	if diff <= c.numericTolerance {
		return ComparisonResult{
			Result:     ComparisonMatch,
			Confidence: pairConf,
			Explanation: fmt.Sprintf("Values match: %s approx %s (within %.0f%% tolerance)",
				claimNum.Raw, evidenceNum.Raw, c.numericTolerance*100),
		}
	}

	return ComparisonResult{
		Result:            ComparisonContradiction,
		ContradictionType: ContradictionMagnitude,
		Confidence:        pairConf * contradictionScale,
		Explanation: fmt.Sprintf("Values differ: claim says %s, evidence says %s (%.1f%% difference)",
			claimNum.Raw, evidenceNum.Raw, diff*100),
	}
}

// compareTemporal compares the primary date ranges of both sides.
func (c *Comparator) compareTemporal(claim, evidence StructuredSignal) ComparisonResult {
	claimTemp := claim.TemporalValues[0]
	evidenceTemp := evidence.TemporalValues[0]

	overlaps := !claimTemp.Start.After(evidenceTemp.End) && !evidenceTemp.Start.After(claimTemp.End)
	if overlaps {
		startDiff := absDays(claimTemp.Start.Sub(evidenceTemp.Start))
		endDiff := absDays(claimTemp.End.Sub(evidenceTemp.End))

		if startDiff <= temporalSlackDays && endDiff <= temporalSlackDays {
			return ComparisonResult{
				Result:      ComparisonMatch,
				Confidence:  math.Min(claimTemp.Confidence, evidenceTemp.Confidence),
				Explanation: fmt.Sprintf("Time periods match: %s approx %s", claimTemp.Raw, evidenceTemp.Raw),
			}
		}

		return ComparisonResult{
			Result:            ComparisonPartial,
			ContradictionType: ContradictionTemporal,
			Confidence:        confTemporalPartial,
			Explanation:       fmt.Sprintf("Time periods overlap but differ: %s vs %s", claimTemp.Raw, evidenceTemp.Raw),
		}
	}

	return ComparisonResult{
		Result:            ComparisonContradiction,
		ContradictionType: ContradictionTemporal,
		Confidence:        math.Min(claimTemp.Confidence, evidenceTemp.Confidence) * temporalScale,
		Explanation: fmt.Sprintf("Time periods do not match: claim says %s, evidence says %s",
			claimTemp.Raw, evidenceTemp.Raw),
	}
}

// comparePolarity compares statement polarity. Only reached when both
// sides are definite (not uncertain).
func (c *Comparator) comparePolarity(claim, evidence StructuredSignal) ComparisonResult {
	if claim.Polarity == evidence.Polarity {
		return ComparisonResult{
			Result:      ComparisonMatch,
			Confidence:  confPolarityMatch,
			Explanation: "Statement polarity matches",
		}
	}

	return ComparisonResult{
		Result:            ComparisonContradiction,
		ContradictionType: ContradictionNegation,
		Confidence:        confPolarityContradict,
		Explanation: fmt.Sprintf("Polarity mismatch: claim is %s, evidence is %s",
			claim.Polarity, evidence.Polarity),
	}
}

// absDays converts a duration between range boundaries to a positive
// day count.
func absDays(d time.Duration) float64 {
	return math.Abs(d.Hours() / 24)
}

func unitLabel(unit string) string {
	if unit == UnitNone {
		return "none"
	}
	return unit
}
