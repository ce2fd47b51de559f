// Package tensor provides small dense row-major tensors used to carry
// batches between the base encoder and the segment-level encoder.
//
// A tensor is a flat slice plus a shape. Reshape and Sub return views that
// share the underlying storage, so flattening (documents, segments, tokens)
// into (documents*segments, tokens) never copies and never reorders.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Element is the set of element types a Tensor can hold.
type Element interface {
	~int | ~float64
}

// Tensor is a dense row-major tensor.
type Tensor[T Element] struct {
	shape []int
	data  []T
}

// Ints holds token ids, attention masks and token type ids.
type Ints = Tensor[int]

// Floats holds hidden states.
type Floats = Tensor[float64]

// ShapeError reports an operation whose shapes do not line up.
type ShapeError struct {
	Op   string
	From []int
	To   []int
}

func (e *ShapeError) Error() string {
	if e.To == nil {
		return fmt.Sprintf("tensor: %s: invalid shape %v", e.Op, e.From)
	}
	return fmt.Sprintf("tensor: %s: shape %v is incompatible with %v", e.Op, e.From, e.To)
}

// New wraps data in a tensor of the given shape. The element count must match.
func New[T Element](data []T, shape ...int) (*Tensor[T], error) {
	size, ok := volume(shape)
	if !ok {
		return nil, &ShapeError{Op: "new", From: clone(shape)}
	}
	if size != len(data) {
		return nil, &ShapeError{Op: "new", From: []int{len(data)}, To: clone(shape)}
	}
	return &Tensor[T]{shape: clone(shape), data: data}, nil
}

// Zeros allocates a zero-filled tensor. It panics on a negative dimension.
func Zeros[T Element](shape ...int) *Tensor[T] {
	size, ok := volume(shape)
	if !ok {
		panic(&ShapeError{Op: "zeros", From: clone(shape)})
	}
	return &Tensor[T]{shape: clone(shape), data: make([]T, size)}
}

// Shape returns a copy of the tensor shape.
func (t *Tensor[T]) Shape() []int { return clone(t.shape) }

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Tensor[T]) Dim(i int) int { return t.shape[i] }

// Len returns the number of elements.
func (t *Tensor[T]) Len() int { return len(t.data) }

// Data returns the backing slice. Writes through it are visible in every view.
func (t *Tensor[T]) Data() []T { return t.data }

// At returns the element at the given index.
func (t *Tensor[T]) At(idx ...int) T { return t.data[t.offset(idx)] }

// Set stores v at the given index.
func (t *Tensor[T]) Set(v T, idx ...int) { t.data[t.offset(idx)] = v }

// Reshape returns a view with a new shape over the same storage. One
// dimension may be -1, in which case it is inferred from the element count.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	resolved, err := resolve(shape, len(t.data))
	if err != nil {
		return nil, &ShapeError{Op: "reshape", From: clone(t.shape), To: clone(shape)}
	}
	return &Tensor[T]{shape: resolved, data: t.data}, nil
}

// Sub returns the view at index i of the leading dimension.
func (t *Tensor[T]) Sub(i int) *Tensor[T] {
	if len(t.shape) == 0 {
		panic(&ShapeError{Op: "sub", From: clone(t.shape)})
	}
	if i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("tensor: index %d out of range [0,%d)", i, t.shape[0]))
	}
	stride := len(t.data) / max(t.shape[0], 1)
	return &Tensor[T]{shape: clone(t.shape[1:]), data: t.data[i*stride : (i+1)*stride]}
}

// Sum returns the sum of all elements.
func (t *Tensor[T]) Sum() T {
	var s T
	for _, v := range t.data {
		s += v
	}
	return s
}

// Matrix views a rank-2 float tensor as a gonum matrix sharing storage.
func Matrix(t *Floats) (*mat.Dense, error) {
	if t.Rank() != 2 {
		return nil, &ShapeError{Op: "matrix", From: t.Shape(), To: []int{-1, -1}}
	}
	r, c := t.shape[0], t.shape[1]
	if r == 0 || c == 0 {
		return nil, &ShapeError{Op: "matrix", From: t.Shape()}
	}
	return mat.NewDense(r, c, t.data), nil
}

// fromMatrix copies a gonum matrix into a rank-2 float tensor.
func fromMatrix(m mat.Matrix) *Floats {
	r, c := m.Dims()
	out := Zeros[float64](r, c)
	mat.NewDense(r, c, out.data).Copy(m)
	return out
}

func (t *Tensor[T]) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on dim %d", v, t.shape[i], i))
		}
		off = off*t.shape[i] + v
	}
	return off
}

func volume(shape []int) (int, bool) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		size *= d
	}
	return size, true
}

func resolve(shape []int, size int) ([]int, error) {
	out := clone(shape)
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d", d)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || size%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension")
		}
		out[infer] = size / known
		return out, nil
	}
	if known != size {
		return nil, fmt.Errorf("size mismatch")
	}
	return out, nil
}

func clone(s []int) []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s))
	copy(out, s)
	return out
}
