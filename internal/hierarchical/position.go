package hierarchical

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SinusoidalTable builds the fixed segment position table. Row 0 is the
// zero vector reserved for padding segments. For p >= 1 and column i the
// angle is p / 10000^(2i/dim); even columns hold its sine and odd columns
// its cosine.
func SinusoidalTable(rows, dim int) *mat.Dense {
	table := mat.NewDense(rows, dim, nil)
	for p := 1; p < rows; p++ {
		row := table.RawRowView(p)
		for i := range row {
			angle := float64(p) / math.Pow(10000, 2*float64(i)/float64(dim))
			if i%2 == 0 {
				row[i] = math.Sin(angle)
			} else {
				row[i] = math.Cos(angle)
			}
		}
	}
	return table
}
