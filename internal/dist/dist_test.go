package dist

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource_SameSeedSameStream(t *testing.T) {
	a := NewSource("seed-42")
	b := NewSource("seed-42")

	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Next(), b.Next(), "draw %d diverged", i)
	}
	assert.Equal(t, uint64(1000), a.Draws())
}

func TestNewSource_DifferentSeedsDiverge(t *testing.T) {
	a := NewSource("seed-1")
	b := NewSource("seed-2")

	same := 0
	for i := 0; i < 100; i++ {
		if a.Next() == b.Next() {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestNext_Range(t *testing.T) {
	s := NewSource("range")
	for i := 0; i < 100000; i++ {
		v := s.Next()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestIntn(t *testing.T) {
	s := NewSource("intn")
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		v := s.Intn(7)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 7)
		seen[v] = true
	}
	assert.Len(t, seen, 7)
	assert.Equal(t, 0, s.Intn(0))
}

func TestNormal_Moments(t *testing.T) {
	s := NewSource("normal")
	values := make([]float64, 50000)
	for i := range values {
		values[i] = s.Normal(12, 3)
	}
	sum := Summarize(values)
	assert.InDelta(t, 12, sum.Mean, 0.1)
	assert.InDelta(t, 12, sum.P50, 0.1)
}

func TestNormal_ConsumesTwoDraws(t *testing.T) {
	s := NewSource("normal-draws")
	s.Normal(0, 1)
	assert.Equal(t, uint64(2), s.Draws())
}

func TestExponential_Mean(t *testing.T) {
	s := NewSource("exp")
	values := make([]float64, 50000)
	for i := range values {
		values[i] = s.Exponential(0.5)
	}
	assert.InDelta(t, 2.0, Mean(values), 0.1)
	assert.Equal(t, 0.0, s.Exponential(0))
}

func TestPowerLaw_BoundsAndHeavyTail(t *testing.T) {
	s := NewSource("power-law")
	values := make([]float64, 100000)
	for i := range values {
		v := s.PowerLaw(1, 100, 2.0)
		require.GreaterOrEqual(t, v, 1.0)
		require.LessOrEqual(t, v, 100.0)
		values[i] = v
	}
	sum := Summarize(values)
	require.Greater(t, sum.P50, 0.0)
	assert.Greater(t, sum.P99/sum.P50, 5.0)
}

func TestPowerLaw_AlphaOne(t *testing.T) {
	s := NewSource("alpha-one")
	for i := 0; i < 1000; i++ {
		v := s.PowerLaw(2, 50, 1.0)
		require.GreaterOrEqual(t, v, 2.0)
		require.LessOrEqual(t, v, 50.0)
	}
}

func TestPowerLaw_DegenerateRange(t *testing.T) {
	s := NewSource("degenerate")
	assert.Equal(t, 5.0, s.PowerLaw(5, 5, 2))
	assert.Equal(t, uint64(1), s.Draws())
}

func TestLogNormal_Median(t *testing.T) {
	s := NewSource("lognormal")
	values := make([]float64, 50000)
	for i := range values {
		values[i] = s.LogNormal(math.Log(80), 0.9)
	}
	assert.InEpsilon(t, 80, Summarize(values).P50, 0.05)
}

func TestCategorical(t *testing.T) {
	s := NewSource("categorical")
	counts := make([]int, 3)
	for i := 0; i < 30000; i++ {
		counts[s.Categorical([]float64{0.7, 0.3, 0})]++
	}
	assert.Zero(t, counts[2])
	assert.InDelta(t, 0.7, float64(counts[0])/30000, 0.02)
	assert.Equal(t, 0, s.Categorical(nil))
	assert.Equal(t, 0, s.Categorical([]float64{0, 0}))
}

func TestShuffle_IsPermutation(t *testing.T) {
	s := NewSource("shuffle")
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	s.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })

	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sorted)
}

func TestShufflePrefix_DistinctPrefix(t *testing.T) {
	s := NewSource("prefix")
	pool := make([]int, 1000)
	for i := range pool {
		pool[i] = i
	}
	s.ShufflePrefix(len(pool), 25, func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	seen := make(map[int]bool)
	for _, v := range pool[:25] {
		require.False(t, seen[v], "duplicate %d in prefix", v)
		seen[v] = true
	}
	assert.Equal(t, uint64(25), s.Draws())

	// k larger than n is clamped
	small := []int{1, 2, 3}
	s.ShufflePrefix(3, 10, func(i, j int) { small[i], small[j] = small[j], small[i] })
	sorted := slices.Clone(small)
	slices.Sort(sorted)
	assert.Equal(t, []int{1, 2, 3}, sorted)
}

func TestPercentile_NearestRank(t *testing.T) {
	sample := make([]float64, 100)
	for i := range sample {
		sample[i] = float64(i + 1)
	}

	assert.Equal(t, 50.0, Percentile(sample, 0.5))
	assert.Equal(t, 99.0, Percentile(sample, 0.99))
	assert.Equal(t, 90.0, Percentile(sample, 0.9))
	assert.Equal(t, 1.0, Percentile(sample, 0))
	assert.Equal(t, 100.0, Percentile(sample, 1))
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
}

func TestSummarize_DoesNotMutateInput(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	sum := Summarize(values)

	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
	assert.Equal(t, 5, sum.Count)
	assert.Equal(t, 1.0, sum.Min)
	assert.Equal(t, 3.0, sum.P50)
	assert.Equal(t, 5.0, sum.Max)
	assert.Equal(t, 3.0, sum.Mean)
}

func TestHistogram(t *testing.T) {
	h := Histogram([]float64{0, 4, 5, 9, 10, 51}, 5)
	assert.Equal(t, map[string]int64{
		"0-5":   2,
		"5-10":  2,
		"10-15": 1,
		"50-55": 1,
	}, h)
	assert.Empty(t, Histogram([]float64{1}, 0))
}

func TestParseBucketKey(t *testing.T) {
	start, end, err := ParseBucketKey("50-100")
	require.NoError(t, err)
	assert.Equal(t, int64(50), start)
	assert.Equal(t, int64(100), end)

	start, end, err = ParseBucketKey("-5-0")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), start)
	assert.Equal(t, int64(0), end)

	_, _, err = ParseBucketKey("nonsense")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, Normalize([]float64{1, 3}), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, Normalize([]float64{0, 0}), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 1}, Normalize([]float64{-2, 4}), 1e-12)
}
