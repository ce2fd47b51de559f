package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LSTMCell holds the parameters of one LSTM direction. Gate rows are
// ordered input, forget, cell, output.
type LSTMCell struct {
	Hidden int

	// WeightIH is 4*Hidden x In, WeightHH is 4*Hidden x Hidden.
	WeightIH *mat.Dense
	WeightHH *mat.Dense
	BiasIH   []float64
	BiasHH   []float64
}

func newLSTMCell(in, hidden int, init *Initializer) *LSTMCell {
	bound := fanInBound(hidden)
	return &LSTMCell{
		Hidden:   hidden,
		WeightIH: init.Uniform(4*hidden, in, bound),
		WeightHH: init.Uniform(4*hidden, hidden, bound),
		BiasIH:   init.UniformVec(4*hidden, bound),
		BiasHH:   init.UniformVec(4*hidden, bound),
	}
}

// BiLSTM is a single-layer bidirectional LSTM over the rows of a matrix.
type BiLSTM struct {
	Hidden   int
	Forward  *LSTMCell
	Backward *LSTMCell
}

// NewBiLSTM allocates a bidirectional LSTM mapping in-wide rows to
// 2*hidden-wide rows.
func NewBiLSTM(in, hidden int, init *Initializer) *BiLSTM {
	return &BiLSTM{
		Hidden:   hidden,
		Forward:  newLSTMCell(in, hidden, init),
		Backward: newLSTMCell(in, hidden, init),
	}
}

// Run consumes an n x In sequence (row = timestep) and returns n x 2*Hidden
// outputs. Columns [0, Hidden) hold the forward direction's hidden state at
// each timestep and [Hidden, 2*Hidden) the backward direction's.
func (l *BiLSTM) Run(x mat.Matrix) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, 2*l.Hidden, nil)
	l.Forward.run(x, out.Slice(0, n, 0, l.Hidden).(*mat.Dense), false)
	l.Backward.run(x, out.Slice(0, n, l.Hidden, 2*l.Hidden).(*mat.Dense), true)
	return out
}

func (c *LSTMCell) run(x mat.Matrix, out *mat.Dense, reverse bool) {
	n, _ := x.Dims()
	hsz := c.Hidden

	// input projections for every timestep at once
	xg := mat.NewDense(n, 4*hsz, nil)
	xg.Mul(x, c.WeightIH.T())

	h := mat.NewVecDense(hsz, nil)
	cell := make([]float64, hsz)
	hg := mat.NewVecDense(4*hsz, nil)

	for step := 0; step < n; step++ {
		t := step
		if reverse {
			t = n - 1 - step
		}
		hg.MulVec(c.WeightHH, h)
		gates := make([]float64, 4*hsz)
		row := xg.RawRowView(t)
		for j := range gates {
			gates[j] = row[j] + c.BiasIH[j] + hg.AtVec(j) + c.BiasHH[j]
		}
		for j := 0; j < hsz; j++ {
			i := Sigmoid(gates[j])
			f := Sigmoid(gates[hsz+j])
			g := math.Tanh(gates[2*hsz+j])
			o := Sigmoid(gates[3*hsz+j])
			cell[j] = f*cell[j] + i*g
			h.SetVec(j, o*math.Tanh(cell[j]))
		}
		out.SetRow(t, h.RawVector().Data)
	}
}
