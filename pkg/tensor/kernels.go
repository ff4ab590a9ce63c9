package tensor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/linaldb/linal/pkg/dberr"
)

// Op identifies an element-wise binary operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
)

// String returns the operator name.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	default:
		return "div"
	}
}

// identity returns the padding value used when relaxed mode extends the
// shorter rank-1 operand: 0 for add/sub, 1 for mul/div.
func (op Op) identity() float64 {
	if op == OpAdd || op == OpSub {
		return 0
	}
	return 1
}

func (op Op) apply(a, b float64) (float64, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	default:
		if b == 0 {
			return 0, &dberr.ArithmeticError{Reason: "division by zero"}
		}
		return a / b, nil
	}
}

// Add returns the element-wise sum of a and b.
func Add(a, b *Tensor) (*Tensor, error) { return Elementwise(OpAdd, a, b) }

// Sub returns the element-wise difference of a and b.
func Sub(a, b *Tensor) (*Tensor, error) { return Elementwise(OpSub, a, b) }

// Mul returns the element-wise product of a and b.
func Mul(a, b *Tensor) (*Tensor, error) { return Elementwise(OpMul, a, b) }

// Div returns the element-wise quotient of a and b.
func Div(a, b *Tensor) (*Tensor, error) { return Elementwise(OpDiv, a, b) }

// Elementwise applies op to a and b. When either operand is tagged strict
// the shapes must match exactly. In relaxed mode a degenerate scalar
// broadcasts to the other operand's shape, and two rank-1 operands of
// different length combine index-wise up to max(len) with the shorter one
// padded by the op identity.
func Elementwise(op Op, a, b *Tensor) (*Tensor, error) {
	if a.strict || b.strict {
		if !equalInts(a.shape, b.shape) {
			return nil, dberr.Shapes(a.shape, b.shape)
		}
		return contiguous(op, a, b)
	}
	switch {
	case equalInts(a.shape, b.shape):
		return contiguous(op, a, b)
	case a.IsScalar():
		return broadcastScalar(op, a.data[0], b, true)
	case b.IsScalar():
		return broadcastScalar(op, b.data[0], a, false)
	case a.Rank() == 1 && b.Rank() == 1:
		return paddedRank1(op, a, b)
	default:
		return nil, dberr.Shapes(a.shape, b.shape)
	}
}

// contiguous is the fast path for identical shapes: one straight loop over
// the shared layout. Add/sub/mul without a zero check go through gonum.
func contiguous(op Op, a, b *Tensor) (*Tensor, error) {
	out := copyFloats(a.data)
	switch op {
	case OpAdd:
		floats.Add(out, b.data)
	case OpSub:
		floats.Sub(out, b.data)
	case OpMul:
		floats.Mul(out, b.data)
	default:
		for i, v := range b.data {
			if v == 0 {
				return nil, &dberr.ArithmeticError{Reason: "division by zero"}
			}
			out[i] = out[i] / v
		}
	}
	return &Tensor{shape: copyInts(a.shape), data: out}, nil
}

// broadcastScalar applies op between a scalar and every element of t.
// scalarLeft records which side the scalar sat on, which matters for the
// non-commutative operators.
func broadcastScalar(op Op, s float64, t *Tensor, scalarLeft bool) (*Tensor, error) {
	out := make([]float64, len(t.data))
	for i, v := range t.data {
		l, r := v, s
		if scalarLeft {
			l, r = s, v
		}
		res, err := op.apply(l, r)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return &Tensor{shape: copyInts(t.shape), data: out}, nil
}

// paddedRank1 combines two vectors of different length index-wise, reading
// the op identity past the end of the shorter one.
func paddedRank1(op Op, a, b *Tensor) (*Tensor, error) {
	n := len(a.data)
	if len(b.data) > n {
		n = len(b.data)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		l, r := op.identity(), op.identity()
		if i < len(a.data) {
			l = a.data[i]
		}
		if i < len(b.data) {
			r = b.data[i]
		}
		res, err := op.apply(l, r)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return &Tensor{shape: []int{n}, data: out}, nil
}

// MatMul multiplies two rank-2 tensors [m,k]x[k,n] into [m,n].
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, &dberr.ShapeMismatch{
			Expected: "two rank-2 tensors",
			Actual:   dberr.Shapes(a.shape, b.shape).Actual,
		}
	}
	if a.shape[1] != b.shape[0] {
		return nil, dberr.Shapes(a.shape, b.shape)
	}
	am := mat.NewDense(a.shape[0], a.shape[1], copyFloats(a.data))
	bm := mat.NewDense(b.shape[0], b.shape[1], copyFloats(b.data))
	var c mat.Dense
	c.Mul(am, bm)
	raw := c.RawMatrix()
	return &Tensor{shape: []int{raw.Rows, raw.Cols}, data: raw.Data}, nil
}

// Transpose swaps the two dimensions of a rank-2 tensor.
func Transpose(a *Tensor) (*Tensor, error) {
	if a.Rank() != 2 {
		return nil, &dberr.ShapeMismatch{Expected: "rank-2 tensor", Actual: dberr.Shapes(a.shape, a.shape).Actual}
	}
	am := mat.NewDense(a.shape[0], a.shape[1], copyFloats(a.data))
	var c mat.Dense
	c.CloneFrom(am.T())
	raw := c.RawMatrix()
	return &Tensor{shape: []int{raw.Rows, raw.Cols}, data: raw.Data}, nil
}

// Reshape returns a handle over the same elements with a new shape whose
// product equals the old one.
func Reshape(a *Tensor, shape []int) (*Tensor, error) {
	if Size(shape) != len(a.data) {
		return nil, dberr.Shapes(a.shape, shape)
	}
	return &Tensor{shape: copyInts(shape), data: a.data}, nil
}

// Flatten returns a rank-1 view of all elements.
func Flatten(a *Tensor) *Tensor {
	return &Tensor{shape: []int{len(a.data)}, data: a.data}
}

// Stack joins tensors of identical shape along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, &dberr.ShapeMismatch{Expected: "at least one tensor", Actual: "[]"}
	}
	base := ts[0].shape
	out := make([]float64, 0, len(ts)*len(ts[0].data))
	for _, t := range ts {
		if !equalInts(t.shape, base) {
			return nil, dberr.Shapes(base, t.shape)
		}
		out = append(out, t.data...)
	}
	shape := append([]int{len(ts)}, base...)
	return &Tensor{shape: shape, data: out}, nil
}

// Scale multiplies every element by s.
func Scale(a *Tensor, s float64) *Tensor {
	out := copyFloats(a.data)
	floats.Scale(s, out)
	return &Tensor{shape: copyInts(a.shape), data: out}
}

// AxisTerm is one position of a tensor index expression: a literal index
// or a wildcard selecting the whole dimension.
type AxisTerm struct {
	Wildcard bool
	Index    int
}

// Index selects elements by per-dimension terms. The result rank equals
// the number of wildcard terms; all-literal indexing yields a rank-0
// tensor.
func Index(a *Tensor, terms []AxisTerm) (*Tensor, error) {
	if len(terms) != len(a.shape) {
		return nil, &dberr.ShapeMismatch{
			Expected: dberr.Shapes(a.shape, a.shape).Expected + " index terms",
			Actual:   dberr.Shapes(a.shape, make([]int, len(terms))).Actual,
		}
	}
	var outShape []int
	for dim, term := range terms {
		if term.Wildcard {
			outShape = append(outShape, a.shape[dim])
			continue
		}
		if term.Index < 0 || term.Index >= a.shape[dim] {
			return nil, &dberr.IndexOutOfRange{Dim: dim, Value: term.Index}
		}
	}
	out := make([]float64, Size(outShape))
	full := make([]int, len(a.shape))
	for flat := range out {
		sub := unravel(flat, outShape)
		wi := 0
		for dim, term := range terms {
			if term.Wildcard {
				full[dim] = sub[wi]
				wi++
			} else {
				full[dim] = term.Index
			}
		}
		off, err := a.offset(full)
		if err != nil {
			return nil, err
		}
		out[flat] = a.data[off]
	}
	return &Tensor{shape: outShape, data: out}, nil
}

// ReduceKind names a whole-tensor reduction.
type ReduceKind int

const (
	ReduceSum ReduceKind = iota
	ReduceMean
	ReduceMin
	ReduceMax
)

// Reduce collapses all elements into a single value.
func Reduce(a *Tensor, kind ReduceKind) (float64, error) {
	if len(a.data) == 0 {
		return 0, &dberr.ArithmeticError{Reason: "reduction over empty tensor"}
	}
	switch kind {
	case ReduceSum:
		return floats.Sum(a.data), nil
	case ReduceMean:
		return floats.Sum(a.data) / float64(len(a.data)), nil
	case ReduceMin:
		return floats.Min(a.data), nil
	default:
		return floats.Max(a.data), nil
	}
}
