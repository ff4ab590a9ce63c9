package value

import (
	"strconv"
	"strings"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/tensor"
)

// Kind is the runtime tag of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindVector
	KindMatrix
	KindTensor
)

// String returns the kind name as used in schemas and error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindVector:
		return "Vector"
	case KindMatrix:
		return "Matrix"
	case KindTensor:
		return "Tensor"
	default:
		return "Unknown"
	}
}

// Value is a tagged-union cell: a scalar or a shared tensor handle.
// The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	t    *tensor.Tensor
}

// Null returns the null value.
func Null() Value { return Value{} }

// NewInt wraps an int64.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewFloat wraps a float64.
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewString wraps a string.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// FromTensor wraps a tensor handle, classifying the tag by rank: rank 1
// is a Vector, rank 2 a Matrix, anything else a general Tensor.
func FromTensor(t *tensor.Tensor) Value {
	switch t.Rank() {
	case 1:
		return Value{kind: KindVector, t: t}
	case 2:
		return Value{kind: KindMatrix, t: t}
	default:
		return Value{kind: KindTensor, t: t}
	}
}

// Kind returns the runtime tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether the value is Int or Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsTensor reports whether the value carries a tensor handle.
func (v Value) IsTensor() bool {
	return v.kind == KindVector || v.kind == KindMatrix || v.kind == KindTensor
}

// Int returns the wrapped integer; the tag must be Int.
func (v Value) Int() (int64, error) {
	if v.kind != KindInt {
		return 0, &dberr.TypeError{Op: "as_int", Types: []string{v.kind.String()}}
	}
	return v.i, nil
}

// AsFloat returns the numeric value, promoting Int to Float.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	default:
		return 0, &dberr.TypeError{Op: "as_float", Types: []string{v.kind.String()}}
	}
}

// Bool returns the wrapped bool; the tag must be Bool.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, &dberr.TypeError{Op: "as_bool", Types: []string{v.kind.String()}}
	}
	return v.b, nil
}

// Str returns the wrapped string; the tag must be String.
func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", &dberr.TypeError{Op: "as_string", Types: []string{v.kind.String()}}
	}
	return v.s, nil
}

// Tensor returns the wrapped tensor handle; the tag must be a shape variant.
func (v Value) Tensor() (*tensor.Tensor, error) {
	if !v.IsTensor() {
		return nil, &dberr.TypeError{Op: "as_tensor", Types: []string{v.kind.String()}}
	}
	return v.t, nil
}

// Type returns the declared-type descriptor of the runtime value.
func (v Value) Type() Type {
	switch v.kind {
	case KindVector, KindMatrix, KindTensor:
		return Type{Kind: v.kind, Dims: v.t.Shape()}
	default:
		return Type{Kind: v.kind}
	}
}

// Equal reports structural equality. Numeric values compare after Int to
// Float promotion; tensors compare shape-and-elementwise.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindVector, KindMatrix, KindTensor:
		return a.t.Equal(b.t)
	default:
		return false
	}
}

// Compare orders two values: Null sorts before everything, numeric values
// compare after promotion, bools order false before true, strings
// lexicographically. Other pairs are not comparable.
func Compare(a, b Value) (int, error) {
	if a.kind == KindNull || b.kind == KindNull {
		switch {
		case a.kind == b.kind:
			return 0, nil
		case a.kind == KindNull:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.kind != b.kind {
		return 0, &dberr.TypeError{Op: "compare", Types: []string{a.kind.String(), b.kind.String()}}
	}
	switch a.kind {
	case KindBool:
		switch {
		case a.b == b.b:
			return 0, nil
		case !a.b:
			return -1, nil
		default:
			return 1, nil
		}
	case KindString:
		return strings.Compare(a.s, b.s), nil
	default:
		return 0, &dberr.TypeError{Op: "compare", Types: []string{a.kind.String(), b.kind.String()}}
	}
}

// Key returns a canonical hash key. Numerically equal Int and Float
// values share a key so index lookups honor promotion.
func Key(v Value) string {
	switch v.kind {
	case KindNull:
		return "∅"
	case KindInt:
		return "n:" + strconv.FormatFloat(float64(v.i), 'g', -1, 64)
	case KindFloat:
		return "n:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	case KindString:
		return "s:" + v.s
	default:
		return "t:" + v.t.String()
	}
}

// String renders the value for tabular output.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return v.t.String()
	}
}
