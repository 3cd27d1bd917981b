package fidelity

import "math"

// chiSquareCritical holds chi-square critical values at alpha = 0.05 for
// 1..10 degrees of freedom.
var chiSquareCritical = [...]float64{3.841, 5.991, 7.815, 9.488, 11.070, 12.592, 14.067, 15.507, 16.919, 18.307}

// chiSquareSlope extends the table linearly past 10 degrees of freedom.
const chiSquareSlope = 1.5

// ChiSquareCritical returns the alpha = 0.05 critical value for df. It is a
// table lookup with a linear tail, not an inverse CDF.
func ChiSquareCritical(df int) float64 {
	if df < 1 {
		return math.NaN()
	}
	if df <= len(chiSquareCritical) {
		return chiSquareCritical[df-1]
	}
	return chiSquareCritical[len(chiSquareCritical)-1] + chiSquareSlope*float64(df-len(chiSquareCritical))
}

// ChiSquare compares observed counts against expected shares scaled to the
// observed total. Categories with no expected share are left out. df is the
// number of categories used minus one.
func ChiSquare(observed map[string]int64, expectedShare map[string]float64, keys []string) (stat float64, df int) {
	var total int64
	for _, k := range keys {
		total += observed[k]
	}
	if total == 0 {
		return 0, 0
	}
	used := 0
	for _, k := range keys {
		share := expectedShare[k]
		if share <= 0 {
			continue
		}
		exp := share * float64(total)
		diff := float64(observed[k]) - exp
		stat += diff * diff / exp
		used++
	}
	return stat, used - 1
}

// RelativeDeviation returns |actual - expected| / expected. The caller
// skips checks whose expected value is zero.
func RelativeDeviation(expected, actual float64) float64 {
	return math.Abs(actual-expected) / math.Abs(expected)
}

// MaxRelativeDifference is the Kolmogorov-Smirnov style statistic over
// paired percentiles: the largest relative difference among pairs whose
// expected value is non-zero. ok is false when no pair qualifies.
func MaxRelativeDifference(expected, actual []float64) (d float64, ok bool) {
	for i := range min(len(expected), len(actual)) {
		if expected[i] == 0 {
			continue
		}
		d = max(d, RelativeDeviation(expected[i], actual[i]))
		ok = true
	}
	return d, ok
}

// shares converts counts to fractions of the total over keys.
func shares(counts map[string]int64, keys []string) map[string]float64 {
	var total int64
	for _, k := range keys {
		total += counts[k]
	}
	out := make(map[string]float64, len(keys))
	if total == 0 {
		return out
	}
	for _, k := range keys {
		out[k] = float64(counts[k]) / float64(total)
	}
	return out
}

// peakTroughRatio is the mean hourly share inside peak over the mean share
// outside it. ok is false when either side is empty or the trough is zero.
func peakTroughRatio(hourly []float64, peak []int) (float64, bool) {
	if len(hourly) != 24 || len(peak) == 0 || len(peak) == 24 {
		return 0, false
	}
	var inPeak [24]bool
	for _, h := range peak {
		if h >= 0 && h < 24 {
			inPeak[h] = true
		}
	}
	var peakSum, troughSum float64
	var peakN, troughN int
	for h, w := range hourly {
		if inPeak[h] {
			peakSum += w
			peakN++
		} else {
			troughSum += w
			troughN++
		}
	}
	if peakN == 0 || troughN == 0 || troughSum == 0 {
		return 0, false
	}
	return (peakSum / float64(peakN)) / (troughSum / float64(troughN)), true
}
