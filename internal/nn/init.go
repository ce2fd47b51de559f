// Package nn implements the inference-time building blocks of the segment
// encoders: linear maps, layer normalisation, multi-head self-attention,
// a post-norm transformer encoder stack and a bidirectional LSTM.
//
// Layers operate on gonum dense matrices where each row is one position of
// a sequence. All layers are read-only during Forward, so a single layer
// value can serve concurrent callers.
package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Initializer draws deterministic parameter values from a seeded source.
type Initializer struct {
	rng *rand.Rand
}

// NewInitializer returns an Initializer seeded with seed.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform returns a rows x cols matrix with entries drawn from U(-bound, bound).
func (in *Initializer) Uniform(rows, cols int, bound float64) *mat.Dense {
	return mat.NewDense(rows, cols, in.UniformVec(rows*cols, bound))
}

// UniformVec returns n values drawn from U(-bound, bound).
func (in *Initializer) UniformVec(n int, bound float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*in.rng.Float64() - 1) * bound
	}
	return out
}

// Normal returns a rows x cols matrix with entries drawn from N(0, std^2).
func (in *Initializer) Normal(rows, cols int, std float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = in.rng.NormFloat64() * std
	}
	return mat.NewDense(rows, cols, data)
}

// fanInBound is the conventional U(-1/sqrt(fan_in), 1/sqrt(fan_in)) bound.
func fanInBound(fanIn int) float64 {
	if fanIn <= 0 {
		return 0
	}
	return 1 / math.Sqrt(float64(fanIn))
}
