package tensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linaldb/linal/pkg/dberr"
)

// Tensor is a dense, row-major n-dimensional array of float64 values.
// The body is immutable after construction; tensors are shared by handle
// and every kernel returns a fresh handle.
type Tensor struct {
	shape  []int
	data   []float64
	strict bool
}

// New builds a tensor from a shape and a row-major data slice. The data
// length must equal the shape product.
func New(shape []int, data []float64) (*Tensor, error) {
	for i, d := range shape {
		if d < 0 {
			return nil, &dberr.ShapeMismatch{
				Expected: "non-negative dimensions",
				Actual:   fmt.Sprintf("dimension %d is %d", i, d),
			}
		}
	}
	if n := Size(shape); n != len(data) {
		return nil, dberr.Shapes([]int{n}, []int{len(data)})
	}
	return &Tensor{shape: copyInts(shape), data: copyFloats(data)}, nil
}

// Scalar returns a rank-0 tensor holding a single value.
func Scalar(v float64) *Tensor {
	return &Tensor{shape: nil, data: []float64{v}}
}

// FromVector builds a rank-1 tensor from a value slice.
func FromVector(data []float64) *Tensor {
	return &Tensor{shape: []int{len(data)}, data: copyFloats(data)}
}

// FromMatrix builds a rank-2 tensor from row slices. All rows must have
// the same length.
func FromMatrix(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return &Tensor{shape: []int{0, 0}, data: nil}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		if len(r) != cols {
			return nil, dberr.Shapes([]int{len(rows), cols}, []int{len(rows), len(r)})
		}
		data = append(data, r...)
	}
	return &Tensor{shape: []int{len(rows), cols}, data: data}, nil
}

// Zeros returns a zero-filled tensor of the given shape.
func Zeros(shape []int) *Tensor {
	return &Tensor{shape: copyInts(shape), data: make([]float64, Size(shape))}
}

// Size returns the element count implied by a shape. An empty shape is a
// scalar shape with one element.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Shape returns a copy of the dimension sizes.
func (t *Tensor) Shape() []int { return copyInts(t.shape) }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len returns the total element count.
func (t *Tensor) Len() int { return len(t.data) }

// Data exposes the underlying row-major storage. Callers must treat the
// slice as read-only; tensor bodies are shared.
func (t *Tensor) Data() []float64 { return t.data }

// Strict reports whether the tensor is tagged strict for element-wise ops.
func (t *Tensor) Strict() bool { return t.strict }

// AsStrict returns a handle sharing this body with the strict tag set.
func (t *Tensor) AsStrict() *Tensor {
	return &Tensor{shape: t.shape, data: t.data, strict: true}
}

// IsScalar reports whether the tensor degenerates to a single element
// (rank 0, or any rank with exactly one element).
func (t *Tensor) IsScalar() bool { return len(t.data) == 1 }

// ScalarValue returns the single element of a degenerate tensor.
func (t *Tensor) ScalarValue() (float64, error) {
	if !t.IsScalar() {
		return 0, dberr.Shapes([]int{1}, t.shape)
	}
	return t.data[0], nil
}

// At returns the element at a full multi-dimensional index.
func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.shape) {
		return 0, dberr.Shapes(t.shape, indices)
	}
	off, err := t.offset(indices)
	if err != nil {
		return 0, err
	}
	return t.data[off], nil
}

// Equal reports shape-and-elementwise equality.
func (t *Tensor) Equal(o *Tensor) bool {
	if !equalInts(t.shape, o.shape) {
		return false
	}
	for i, v := range t.data {
		if v != o.data[i] {
			return false
		}
	}
	return true
}

// EqualApprox reports elementwise equality within tol.
func (t *Tensor) EqualApprox(o *Tensor, tol float64) bool {
	if !equalInts(t.shape, o.shape) {
		return false
	}
	for i, v := range t.data {
		if math.Abs(v-o.data[i]) > tol {
			return false
		}
	}
	return true
}

// String renders vectors as [..] and matrices as [[..], ..]; higher ranks
// carry an explicit shape prefix.
func (t *Tensor) String() string {
	switch len(t.shape) {
	case 0:
		return formatFloat(t.data[0])
	case 1:
		return formatRow(t.data)
	case 2:
		rows := make([]string, t.shape[0])
		for i := 0; i < t.shape[0]; i++ {
			rows[i] = formatRow(t.data[i*t.shape[1] : (i+1)*t.shape[1]])
		}
		return "[" + strings.Join(rows, ", ") + "]"
	default:
		return fmt.Sprintf("tensor%v%s", t.shape, formatRow(t.data))
	}
}

// Helper methods

// offset converts a full multi-dimensional index to a flat row-major offset.
func (t *Tensor) offset(indices []int) (int, error) {
	off := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			return 0, &dberr.IndexOutOfRange{Dim: i, Value: indices[i]}
		}
		off += indices[i] * stride
		stride *= t.shape[i]
	}
	return off, nil
}

// unravel converts a flat offset into a multi-dimensional index for shape.
func unravel(flat int, shape []int) []int {
	indices := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		indices[i] = flat % shape[i]
		flat /= shape[i]
	}
	return indices
}

func copyInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func copyFloats(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatRow(data []float64) string {
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
