package dist

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Source is a seeded pseudo-random stream.
//
// Not safe for concurrent use. Each generation run owns exactly one Source.
type Source struct {
	pcg   *rand.PCG
	draws uint64
}

// NewSource derives generator state from seed.
// The seed string is hashed so that similar seeds ("run-1", "run-2") start
// from unrelated states.
func NewSource(seed string) *Source {
	sum := sha256.Sum256([]byte(seed))
	hi := binary.LittleEndian.Uint64(sum[0:8])
	lo := binary.LittleEndian.Uint64(sum[8:16])
	return &Source{pcg: rand.NewPCG(hi, lo)}
}

// Next returns a float in [0, 1).
func (s *Source) Next() float64 {
	s.draws++
	return float64(s.pcg.Uint64()>>11) * 0x1p-53
}

// Draws reports how many values have been consumed from the stream.
func (s *Source) Draws() uint64 {
	return s.draws
}

// Intn returns an int in [0, n). Returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(s.Next() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Uniform returns a float in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + s.Next()*(hi-lo)
}

// Bernoulli returns true with probability p.
func (s *Source) Bernoulli(p float64) bool {
	return s.Next() < p
}

// Normal draws from N(mean, stddev) with the Box-Muller transform.
// Every call consumes exactly two values from the stream.
func (s *Source) Normal(mean, stddev float64) float64 {
	u1 := 1 - s.Next() // (0, 1], keeps the log finite
	u2 := s.Next()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + stddev*z
}

// Exponential draws from an exponential distribution with rate lambda.
// A non-positive rate yields 0.
func (s *Source) Exponential(lambda float64) float64 {
	u := s.Next()
	if lambda <= 0 {
		return 0
	}
	return -math.Log(1-u) / lambda
}

// PowerLaw draws from a bounded power law with density proportional to
// x^-alpha on [min, max] using the inverse CDF
//
//	x = (min^a + u*(max^a - min^a))^(1/a), a = 1 - alpha
//
// alpha == 1 degenerates to the log-uniform limit.
func (s *Source) PowerLaw(min, max, alpha float64) float64 {
	u := s.Next()
	if max <= min {
		return min
	}
	a := 1 - alpha
	var x float64
	if math.Abs(a) < 1e-9 {
		x = min * math.Pow(max/min, u)
	} else {
		lo := math.Pow(min, a)
		hi := math.Pow(max, a)
		x = math.Pow(lo+u*(hi-lo), 1/a)
	}
	return clamp(x, min, max)
}

// LogNormal draws exp(N(mu, sigma)).
func (s *Source) LogNormal(mu, sigma float64) float64 {
	return math.Exp(s.Normal(mu, sigma))
}

// Categorical returns an index drawn in proportion to weights.
// Weights need not sum to 1. All-zero weights select index 0.
func (s *Source) Categorical(weights []float64) int {
	u := s.Next()
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 || len(weights) == 0 {
		return 0
	}
	target := u * total
	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	// Rounding can leave target == total; fall back to the last positive weight.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return 0
}

// Shuffle permutes n elements with Fisher-Yates.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// ShufflePrefix runs the first k steps of a forward Fisher-Yates shuffle so
// that positions [0, k) hold a uniform random k-subset of the n elements.
// Cost is O(k), which keeps member selection cheap against a large pool.
func (s *Source) ShufflePrefix(n, k int, swap func(i, j int)) {
	if k > n {
		k = n
	}
	for i := 0; i < k; i++ {
		j := i + s.Intn(n-i)
		swap(i, j)
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
