package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MultiHeadAttention is scaled dot-product self-attention split across heads.
type MultiHeadAttention struct {
	Heads   int
	HeadDim int

	Query  *Linear
	Key    *Linear
	Value  *Linear
	Output *Linear
}

// NewMultiHeadAttention allocates attention over dModel-wide rows.
func NewMultiHeadAttention(dModel, heads int, init *Initializer) (*MultiHeadAttention, error) {
	if heads <= 0 || dModel%heads != 0 {
		return nil, fmt.Errorf("hidden size %d is not divisible by %d attention heads", dModel, heads)
	}
	return &MultiHeadAttention{
		Heads:   heads,
		HeadDim: dModel / heads,
		Query:   NewLinear(dModel, dModel, init),
		Key:     NewLinear(dModel, dModel, init),
		Value:   NewLinear(dModel, dModel, init),
		Output:  NewLinear(dModel, dModel, init),
	}, nil
}

// Forward attends every row of x to every other row. mask may be nil; when
// set, mask[j] == false removes position j from every query's softmax.
func (a *MultiHeadAttention) Forward(x mat.Matrix, mask []bool) *mat.Dense {
	n, dModel := x.Dims()
	q := a.Query.Forward(x)
	k := a.Key.Forward(x)
	v := a.Value.Forward(x)

	heads := mat.NewDense(n, dModel, nil)
	scores := mat.NewDense(n, n, nil)
	scale := 1 / math.Sqrt(float64(a.HeadDim))

	for h := 0; h < a.Heads; h++ {
		lo, hi := h*a.HeadDim, (h+1)*a.HeadDim
		qh := q.Slice(0, n, lo, hi)
		kh := k.Slice(0, n, lo, hi)
		vh := v.Slice(0, n, lo, hi)

		scores.Mul(qh, kh.T())
		scores.Scale(scale, scores)
		for i := 0; i < n; i++ {
			softmax(scores.RawRowView(i), mask)
		}
		heads.Slice(0, n, lo, hi).(*mat.Dense).Mul(scores, vh)
	}
	return a.Output.Forward(heads)
}

func softmax(row []float64, mask []bool) {
	if mask != nil {
		for j := range row {
			if !mask[j] {
				row[j] = math.Inf(-1)
			}
		}
	}
	m := floats.Max(row)
	if math.IsInf(m, -1) {
		// every key masked: attend uniformly rather than produce NaN
		for j := range row {
			row[j] = 1 / float64(len(row))
		}
		return
	}
	var sum float64
	for j, v := range row {
		row[j] = math.Exp(v - m)
		sum += row[j]
	}
	floats.Scale(1/sum, row)
}
