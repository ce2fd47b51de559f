package nn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear computes y = x W^T + b row by row.
type Linear struct {
	In, Out int

	// Weight is Out x In.
	Weight *mat.Dense

	// Bias has length Out.
	Bias []float64
}

// NewLinear allocates a Linear layer with fan-in uniform initialisation.
func NewLinear(in, out int, init *Initializer) *Linear {
	bound := fanInBound(in)
	return &Linear{
		In:     in,
		Out:    out,
		Weight: init.Uniform(out, in, bound),
		Bias:   init.UniformVec(out, bound),
	}
}

// Forward maps an n x In matrix to an n x Out matrix.
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	r, _ := x.Dims()
	out := mat.NewDense(r, l.Out, nil)
	out.Mul(x, l.Weight.T())
	for i := 0; i < r; i++ {
		floats.Add(out.RawRowView(i), l.Bias)
	}
	return out
}
