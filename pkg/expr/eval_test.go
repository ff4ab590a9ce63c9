package expr

import (
	"errors"
	"testing"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

func lit(v value.Value) *Literal { return &Literal{Value: v} }

func vec(data ...float64) value.Value {
	return value.FromTensor(tensor.FromVector(data))
}

func TestArithmetic(t *testing.T) {
	env := MapEnv{}
	tests := []struct {
		name string
		e    Expr
		want value.Value
	}{
		{"int add", &Binary{Op: OpAdd, L: lit(value.NewInt(2)), R: lit(value.NewInt(3))}, value.NewInt(5)},
		{"int div truncates", &Binary{Op: OpDiv, L: lit(value.NewInt(7)), R: lit(value.NewInt(2))}, value.NewInt(3)},
		{"mixed promotes", &Binary{Op: OpMul, L: lit(value.NewInt(2)), R: lit(value.NewFloat(1.5))}, value.NewFloat(3)},
		{"string concat", &Binary{Op: OpAdd, L: lit(value.NewString("foo")), R: lit(value.NewString("bar"))}, value.NewString("foobar")},
		{"null propagates", &Binary{Op: OpAdd, L: lit(value.Null()), R: lit(value.NewInt(1))}, value.Null()},
		{"tensor plus scalar", &Binary{Op: OpAdd, L: lit(vec(1, 2)), R: lit(value.NewInt(10))}, vec(11, 12)},
		{"tensor times tensor", &Binary{Op: OpMul, L: lit(vec(1, 2)), R: lit(vec(3, 4))}, vec(3, 8)},
		{"negation", &Unary{Op: OpNeg, X: lit(value.NewInt(4))}, value.NewInt(-4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, env)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if !value.Equal(got, tt.want) || got.IsNull() != tt.want.IsNull() {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestArithmeticErrors(t *testing.T) {
	env := MapEnv{}
	_, err := Eval(&Binary{Op: OpDiv, L: lit(value.NewInt(1)), R: lit(value.NewInt(0))}, env)
	var arith *dberr.ArithmeticError
	if !errors.As(err, &arith) {
		t.Fatalf("expected ArithmeticError, got %v", err)
	}

	_, err = Eval(&Binary{Op: OpAdd, L: lit(value.NewBool(true)), R: lit(value.NewInt(1))}, env)
	var te *dberr.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TypeError, got %v", err)
	}
}

func TestComparisons(t *testing.T) {
	env := MapEnv{}
	tests := []struct {
		name string
		e    Expr
		want value.Value
	}{
		{"eq true", &Binary{Op: OpEq, L: lit(value.NewInt(2)), R: lit(value.NewFloat(2))}, value.NewBool(true)},
		{"ne", &Binary{Op: OpNe, L: lit(value.NewInt(2)), R: lit(value.NewInt(3))}, value.NewBool(true)},
		{"lt", &Binary{Op: OpLt, L: lit(value.NewInt(2)), R: lit(value.NewInt(3))}, value.NewBool(true)},
		{"ge", &Binary{Op: OpGe, L: lit(value.NewString("b")), R: lit(value.NewString("a"))}, value.NewBool(true)},
		{"null comparison is null", &Binary{Op: OpEq, L: lit(value.Null()), R: lit(value.NewInt(1))}, value.Null()},
		{"tensor equality", &Binary{Op: OpEq, L: lit(vec(1, 2)), R: lit(vec(1, 2))}, value.NewBool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, env)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if got.IsNull() != tt.want.IsNull() {
				t.Fatalf("null-ness: got %s, want %s", got, tt.want)
			}
			if !got.IsNull() && !value.Equal(got, tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	env := MapEnv{}
	f := lit(value.NewBool(false))
	tr := lit(value.NewBool(true))
	null := lit(value.Null())

	// The poison operand would fail if evaluated.
	poison := &Binary{Op: OpAdd, L: lit(value.NewBool(true)), R: lit(value.NewInt(1))}

	got, err := Eval(&Binary{Op: OpAnd, L: f, R: poison}, env)
	if err != nil {
		t.Fatalf("AND should short-circuit: %v", err)
	}
	if b, _ := got.Bool(); b {
		t.Error("false AND x should be false")
	}

	got, err = Eval(&Binary{Op: OpOr, L: tr, R: poison}, env)
	if err != nil {
		t.Fatalf("OR should short-circuit: %v", err)
	}
	if b, _ := got.Bool(); !b {
		t.Error("true OR x should be true")
	}

	// Three-valued logic with Null.
	got, _ = Eval(&Binary{Op: OpAnd, L: null, R: f}, env)
	if b, _ := got.Bool(); got.IsNull() || b {
		t.Error("null AND false should be false")
	}
	got, _ = Eval(&Binary{Op: OpAnd, L: null, R: tr}, env)
	if !got.IsNull() {
		t.Error("null AND true should be null")
	}
	got, _ = Eval(&Binary{Op: OpOr, L: null, R: tr}, env)
	if b, _ := got.Bool(); got.IsNull() || !b {
		t.Error("null OR true should be true")
	}
	got, _ = Eval(&Binary{Op: OpOr, L: null, R: f}, env)
	if !got.IsNull() {
		t.Error("null OR false should be null")
	}
}

func TestSimilarityOperator(t *testing.T) {
	env := MapEnv{}
	got, err := Eval(&Binary{Op: OpSim, L: lit(vec(1, 0)), R: lit(vec(1, 0))}, env)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	f, _ := got.AsFloat()
	if f != 1 {
		t.Errorf("cosine of identical vectors = %v, want 1", f)
	}
}

func TestNameResolution(t *testing.T) {
	env := MapEnv{"x": value.NewInt(10), "v": vec(1, 2, 3)}

	got, err := Eval(&Binary{Op: OpMul, L: &ColumnRef{Name: "x"}, R: lit(value.NewInt(2))}, env)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !value.Equal(got, value.NewInt(20)) {
		t.Errorf("got %s", got)
	}

	_, err = Eval(&ColumnRef{Name: "missing"}, env)
	var nf *dberr.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestTensorIndexing(t *testing.T) {
	m, _ := tensor.New([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	env := MapEnv{"m": value.FromTensor(m)}

	got, err := Eval(&TensorIndex{X: &ColumnRef{Name: "m"}, Indices: []IndexTerm{{Index: 1}, {Index: 0}}}, env)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	f, _ := got.AsFloat()
	if f != 4 {
		t.Errorf("m[1,0] = %v, want 4", f)
	}

	got, err = Eval(&TensorIndex{X: &ColumnRef{Name: "m"}, Indices: []IndexTerm{{Wildcard: true}, {Index: 2}}}, env)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !value.Equal(got, vec(3, 6)) {
		t.Errorf("m[*,2] = %s", got)
	}
}

func TestCalls(t *testing.T) {
	a, _ := tensor.New([]int{2, 2}, []float64{1, 2, 3, 4})
	env := MapEnv{
		"a": value.FromTensor(a),
		"u": vec(1, 0, 0),
		"w": vec(0, 1, 0),
	}
	tests := []struct {
		name string
		e    Expr
		want value.Value
	}{
		{"dot", &Call{Name: "DOT", Args: []Expr{&ColumnRef{Name: "u"}, &ColumnRef{Name: "u"}}}, value.NewFloat(1)},
		{"cosine", &Call{Name: "cosine", Args: []Expr{&ColumnRef{Name: "u"}, &ColumnRef{Name: "w"}}}, value.NewFloat(0)},
		{"scale", &Call{Name: "SCALE", Args: []Expr{&ColumnRef{Name: "u"}, lit(value.NewInt(3))}}, vec(3, 0, 0)},
		{"sum reduces tensor", &Call{Name: "SUM", Args: []Expr{&ColumnRef{Name: "a"}}}, value.NewFloat(10)},
		{"prefix add", &Call{Name: "ADD", Args: []Expr{lit(vec(1, 2, 3)), lit(vec(10, 20, 30, 40, 50))}}, vec(11, 22, 33, 40, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, env)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if !value.Equal(got, tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("matmul shape error", func(t *testing.T) {
		_, err := Eval(&Call{Name: "MATMUL", Args: []Expr{&ColumnRef{Name: "a"}, &ColumnRef{Name: "u"}}}, env)
		if err == nil {
			t.Error("expected error for vector operand")
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := Eval(&Call{Name: "NOPE", Args: []Expr{lit(value.NewInt(1))}}, env)
		var nf *dberr.NotFound
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestEvalIsPure(t *testing.T) {
	env := MapEnv{"x": value.NewInt(3)}
	e := &Binary{Op: OpMul, L: &ColumnRef{Name: "x"}, R: &ColumnRef{Name: "x"}}
	first, err := Eval(e, env)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := Eval(e, env)
		if err != nil {
			t.Fatal(err)
		}
		if !value.Equal(first, again) {
			t.Fatal("repeated evaluation changed the result")
		}
	}
}
