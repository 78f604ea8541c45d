package sampling

import (
	"math"
	"math/rand/v2"
)

const haltonShiftStream = 0x9e3779b97f4a7c15

// Halton is a randomly shifted (Cranley–Patterson) Halton sequence. It is
// immutable after construction and safe to share between generators.
type Halton struct {
	primes []int
	shift  []float64
}

// NewHalton builds a sequence over dims dimensions; the shift is drawn from seed
func NewHalton(dims int, seed uint64) *Halton {
	if dims < 1 {
		dims = 1
	}
	rng := rand.New(rand.NewPCG(seed, haltonShiftStream))
	shift := make([]float64, dims)
	for i := range shift {
		shift[i] = rng.Float64()
	}
	return &Halton{primes: firstPrimes(dims), shift: shift}
}

// Dims returns the number of dimensions
func (h *Halton) Dims() int { return len(h.primes) }

// At returns coordinate dim of point index, strictly inside (0, 1)
func (h *Halton) At(index uint64, dim int) float64 {
	u := radicalInverse(index, h.primes[dim]) + h.shift[dim]
	u -= math.Floor(u)
	const eps = 1e-12
	if u < eps {
		return eps
	}
	if u > 1-eps {
		return 1 - eps
	}
	return u
}

func radicalInverse(index uint64, base int) float64 {
	b := uint64(base)
	inv := 1 / float64(base)
	f := inv
	r := 0.0
	for index > 0 {
		r += f * float64(index%b)
		index /= b
		f *= inv
	}
	return r
}

func firstPrimes(n int) []int {
	primes := make([]int, 0, n)
	for c := 2; len(primes) < n; c++ {
		prime := true
		for _, p := range primes {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			primes = append(primes, c)
		}
	}
	return primes
}
