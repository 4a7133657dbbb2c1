// Package threshold converts coverage requirements into counts of shared
// hashes.
package threshold

import (
	"math"

	"github.com/kamusis/greyhound/internal/sketch"
)

// ForQuery converts a base-pair budget into the minimum number of shared
// hashes for sk: thresholdBP / (size * scaled), floored. One hash of a
// scaled sketch stands for about scaled bases. ok is false for an empty
// sketch, which has no meaningful threshold and should be skipped.
func ForQuery(thresholdBP uint64, sk *sketch.Sketch) (uint64, bool) {
	n := sk.Size()
	if n == 0 {
		return 0, false
	}
	return Hashes(thresholdBP, n, sk.Scaled()), true
}

// Hashes is the arithmetic behind ForQuery. n and scaled below 1 count as 1.
func Hashes(thresholdBP uint64, n int, scaled uint64) uint64 {
	if n < 1 {
		n = 1
	}
	if scaled < 1 {
		scaled = 1
	}
	den := uint64(n) * scaled
	if den/scaled != uint64(n) {
		// overflow: the denominator exceeds any budget
		return 0
	}
	return thresholdBP / den
}

// Min returns the smallest per-query threshold across sketches, so pruning
// with it keeps every query's significant matches. Empty sketches are
// ignored; with no usable sketch the result is 0 (no pruning).
func Min(thresholdBP uint64, sketches []*sketch.Sketch) uint64 {
	lowest := uint64(math.MaxUint64)
	found := false
	for _, sk := range sketches {
		t, ok := ForQuery(thresholdBP, sk)
		if !ok {
			continue
		}
		found = true
		if t < lowest {
			lowest = t
		}
	}
	if !found {
		return 0
	}
	return lowest
}

// Fraction converts a fraction of the query (0..1) into an absolute count
// of shared hashes, floored. Out-of-range fractions are clamped.
func Fraction(f float64, size int) uint64 {
	if math.IsNaN(f) || f <= 0 || size <= 0 {
		return 0
	}
	if f > 1 {
		f = 1
	}
	return uint64(f * float64(size))
}
