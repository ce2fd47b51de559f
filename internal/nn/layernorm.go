package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalises every row to zero mean and unit variance, then
// applies an element-wise affine transform.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

// NewLayerNorm returns a LayerNorm with gamma=1 and beta=0.
func NewLayerNorm(dim int, eps float64) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{Gamma: gamma, Beta: make([]float64, dim), Eps: eps}
}

// Forward returns a normalised copy of x.
func (ln *LayerNorm) Forward(x mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(x)
	r, _ := out.Dims()
	for i := 0; i < r; i++ {
		ln.normalize(out.RawRowView(i))
	}
	return out
}

func (ln *LayerNorm) normalize(row []float64) {
	n := float64(len(row))
	mean := floats.Sum(row) / n
	var variance float64
	for _, v := range row {
		d := v - mean
		variance += d * d
	}
	variance /= n
	inv := 1 / math.Sqrt(variance+ln.Eps)
	for j, v := range row {
		row[j] = (v-mean)*inv*ln.Gamma[j] + ln.Beta[j]
	}
}
