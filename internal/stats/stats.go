// Package stats holds the small numeric helpers shared by the interpretation
// pipeline. Every function is total: degenerate inputs yield ok=false or a
// documented fallback, never a panic or NaN.
package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// MinPValue is the floor applied before any logarithmic transform.
const MinPValue = 1e-300

// ClampP bounds p to [MinPValue, 1].
func ClampP(p float64) float64 {
	if math.IsNaN(p) || p < MinPValue {
		return MinPValue
	}
	if p > 1 {
		return 1
	}
	return p
}

// HedgesG computes the bias-corrected standardized mean difference of a
// treated group against control from summary statistics.
func HedgesG(treatedMean, treatedSD float64, treatedN int, controlMean, controlSD float64, controlN int) (float64, bool) {
	if treatedN < 2 || controlN < 2 {
		return 0, false
	}
	df := float64(treatedN + controlN - 2)
	pooledVar := (float64(treatedN-1)*treatedSD*treatedSD + float64(controlN-1)*controlSD*controlSD) / df
	if pooledVar <= 0 || math.IsNaN(pooledVar) {
		return 0, false
	}
	d := (treatedMean - controlMean) / math.Sqrt(pooledVar)
	return d * correction(treatedN+controlN), true
}

// HedgesGSamples computes Hedges' g from raw per-animal values using the
// sample standard deviation of each group.
func HedgesGSamples(treated, control []float64) (float64, bool) {
	if len(treated) < 2 || len(control) < 2 {
		return 0, false
	}
	tMean, tSD := stat.MeanStdDev(treated, nil)
	cMean, cSD := stat.MeanStdDev(control, nil)
	return HedgesG(tMean, tSD, len(treated), cMean, cSD, len(control))
}

func correction(n int) float64 {
	denom := 4*float64(n) - 9
	if denom <= 0 {
		return 1
	}
	return 1 - 3/denom
}

// FoldChangeMagnitude returns the fold change expressed as a value >= 1 so
// that decreases and increases compare on the same scale. Non-positive
// inputs are not meaningful and return ok=false.
func FoldChangeMagnitude(fc float64) (float64, bool) {
	if fc <= 0 || math.IsNaN(fc) || math.IsInf(fc, 0) {
		return 0, false
	}
	if fc < 1 {
		return 1 / fc, true
	}
	return fc, true
}

// Ratio divides guarding against a zero denominator.
func Ratio(num, denom float64) (float64, bool) {
	if denom == 0 || math.IsNaN(denom) {
		return 0, false
	}
	return num / denom, true
}

// Round rounds to the given decimal places; NaN rounds to 0.
func Round(x float64, places int) float64 {
	r, err := mstats.Round(x, places)
	if err != nil || math.IsNaN(r) {
		return 0
	}
	return r
}

// Abs returns |x|.
func Abs(x float64) float64 {
	return math.Abs(x)
}
