package dist

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the percentile ladder extracted from a sample.
type Summary struct {
	Count int
	Mean  float64
	Min   float64
	P50   float64
	P75   float64
	P90   float64
	P95   float64
	P99   float64
	Max   float64
}

// Percentile returns the nearest-rank percentile of an ascending sample:
// the value at 1-based rank ceil(p*n). p is clamped to [0, 1].
// Returns 0 for an empty sample.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	// The epsilon absorbs representation error in p*n (0.99*100 must rank 99).
	rank := int(math.Ceil(p*float64(n) - 1e-9))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Summarize sorts a copy of values and extracts the percentile ladder.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return Summary{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		Min:   sorted[0],
		P50:   Percentile(sorted, 0.50),
		P75:   Percentile(sorted, 0.75),
		P90:   Percentile(sorted, 0.90),
		P95:   Percentile(sorted, 0.95),
		P99:   Percentile(sorted, 0.99),
		Max:   sorted[len(sorted)-1],
	}
}

// BucketKey formats a histogram bucket as "{start}-{end}".
func BucketKey(start, end int64) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// Histogram buckets values at a fixed width. Negative values fall into
// buckets below zero with the same arithmetic.
func Histogram(values []float64, width int64) map[string]int64 {
	out := make(map[string]int64)
	if width <= 0 {
		return out
	}
	for _, v := range values {
		start := int64(math.Floor(v/float64(width))) * width
		out[BucketKey(start, start+width)]++
	}
	return out
}

// ParseBucketKey is the inverse of BucketKey.
func ParseBucketKey(key string) (start, end int64, err error) {
	// A leading '-' belongs to a negative start, so scan from the second byte.
	for i := 1; i < len(key); i++ {
		if key[i] == '-' {
			if _, err := fmt.Sscanf(key[:i], "%d", &start); err != nil {
				return 0, 0, fmt.Errorf("bucket %q: %w", key, err)
			}
			if _, err := fmt.Sscanf(key[i+1:], "%d", &end); err != nil {
				return 0, 0, fmt.Errorf("bucket %q: %w", key, err)
			}
			return start, end, nil
		}
	}
	return 0, 0, fmt.Errorf("bucket %q: missing separator", key)
}

// Normalize rescales weights to sum to 1. Negative weights are treated as 0.
// An all-zero input becomes the uniform distribution.
func Normalize(weights []float64) []float64 {
	out := make([]float64, len(weights))
	for i, w := range weights {
		if w > 0 {
			out[i] = w
		}
	}
	total := floats.Sum(out)
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	floats.Scale(1/total, out)
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
