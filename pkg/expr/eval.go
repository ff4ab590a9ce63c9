package expr

import (
	"strings"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// Env supplies name bindings during evaluation. Resolve consults the
// current row first and ambient names second; ResolveColumn is row scope
// only; Member resolves qualified dot-access.
type Env interface {
	Resolve(name string) (value.Value, bool, error)
	ResolveColumn(name string) (value.Value, bool, error)
	Member(base, name string) (value.Value, bool, error)
}

// MapEnv is an ambient environment over a name→value map. Qualified
// members resolve through "base.name" keys.
type MapEnv map[string]value.Value

// Resolve looks up a plain name.
func (m MapEnv) Resolve(name string) (value.Value, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

// ResolveColumn always misses: a map environment has no row scope.
func (m MapEnv) ResolveColumn(string) (value.Value, bool, error) {
	return value.Value{}, false, nil
}

// Member looks up a qualified name.
func (m MapEnv) Member(base, name string) (value.Value, bool, error) {
	v, ok := m[base+"."+name]
	return v, ok, nil
}

// Eval evaluates an expression against an environment. Evaluation is
// pure: the same environment always yields the same result.
func Eval(e Expr, env Env) (value.Value, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil
	case *ColumnRef:
		v, ok, err := env.Resolve(n.Name)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.Value{}, &dberr.NotFound{Kind: "name", Name: n.Name}
		}
		return v, nil
	case *ComputedLookup:
		v, ok, err := env.ResolveColumn(n.Column)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.Value{}, &dberr.NotFound{Kind: "column", Name: n.Column}
		}
		return v, nil
	case *TupleField:
		return evalTupleField(n, env)
	case *TensorIndex:
		return evalTensorIndex(n, env)
	case *Binary:
		return evalBinary(n, env)
	case *Unary:
		return evalUnary(n, env)
	case *Call:
		return evalCall(n, env)
	default:
		return value.Value{}, &dberr.Internal{Msg: "unknown expression node"}
	}
}

func evalTupleField(n *TupleField, env Env) (value.Value, error) {
	base, ok := n.X.(*ColumnRef)
	if !ok {
		return value.Value{}, &dberr.TypeError{Op: ".", Types: []string{"non-name base"}}
	}
	v, found, err := env.Member(base.Name, n.Name)
	if err != nil {
		return value.Value{}, err
	}
	if !found {
		return value.Value{}, &dberr.NotFound{Kind: "name", Name: base.Name + "." + n.Name}
	}
	return v, nil
}

func evalTensorIndex(n *TensorIndex, env Env) (value.Value, error) {
	v, err := Eval(n.X, env)
	if err != nil {
		return value.Value{}, err
	}
	t, err := v.Tensor()
	if err != nil {
		return value.Value{}, &dberr.TypeError{Op: "index", Types: []string{v.Kind().String()}}
	}
	terms := make([]tensor.AxisTerm, len(n.Indices))
	for i, ix := range n.Indices {
		terms[i] = tensor.AxisTerm{Wildcard: ix.Wildcard, Index: ix.Index}
	}
	out, err := tensor.Index(t, terms)
	if err != nil {
		return value.Value{}, err
	}
	if out.Rank() == 0 {
		f, _ := out.ScalarValue()
		return value.NewFloat(f), nil
	}
	return value.FromTensor(out), nil
}

func evalBinary(n *Binary, env Env) (value.Value, error) {
	if n.Op == OpAnd || n.Op == OpOr {
		return evalLogical(n, env)
	}
	l, err := Eval(n.L, env)
	if err != nil {
		return value.Value{}, err
	}
	r, err := Eval(n.R, env)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return evalComparison(n.Op, l, r)
	case OpSim:
		return evalSimilarity(l, r)
	default:
		return evalArithmetic(n.Op, l, r)
	}
}

// evalLogical implements short-circuit three-valued AND/OR: Null operands
// propagate unless the other side decides the result.
func evalLogical(n *Binary, env Env) (value.Value, error) {
	l, err := Eval(n.L, env)
	if err != nil {
		return value.Value{}, err
	}
	lb, lNull, err := boolOperand(n.Op.String(), l)
	if err != nil {
		return value.Value{}, err
	}
	if !lNull {
		if n.Op == OpAnd && !lb {
			return value.NewBool(false), nil
		}
		if n.Op == OpOr && lb {
			return value.NewBool(true), nil
		}
	}
	r, err := Eval(n.R, env)
	if err != nil {
		return value.Value{}, err
	}
	rb, rNull, err := boolOperand(n.Op.String(), r)
	if err != nil {
		return value.Value{}, err
	}
	if !rNull {
		if n.Op == OpAnd && !rb {
			return value.NewBool(false), nil
		}
		if n.Op == OpOr && rb {
			return value.NewBool(true), nil
		}
	}
	if lNull || rNull {
		return value.Null(), nil
	}
	if n.Op == OpAnd {
		return value.NewBool(lb && rb), nil
	}
	return value.NewBool(lb || rb), nil
}

func boolOperand(op string, v value.Value) (b bool, isNull bool, err error) {
	if v.IsNull() {
		return false, true, nil
	}
	b, e := v.Bool()
	if e != nil {
		return false, false, &dberr.TypeError{Op: op, Types: []string{v.Kind().String()}}
	}
	return b, false, nil
}

// evalComparison returns Null when either operand is Null; rows with Null
// predicate results are excluded by the executor's filter.
func evalComparison(op BinaryOp, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}
	switch op {
	case OpEq:
		return value.NewBool(value.Equal(l, r)), nil
	case OpNe:
		return value.NewBool(!value.Equal(l, r)), nil
	}
	c, err := value.Compare(l, r)
	if err != nil {
		return value.Value{}, err
	}
	switch op {
	case OpLt:
		return value.NewBool(c < 0), nil
	case OpLe:
		return value.NewBool(c <= 0), nil
	case OpGt:
		return value.NewBool(c > 0), nil
	default:
		return value.NewBool(c >= 0), nil
	}
}

// evalSimilarity computes cosine similarity for the ~= operator. The
// planner recognizes the same node shape as a top-K predicate; evaluated
// directly it is just the score.
func evalSimilarity(l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}
	lt, err := l.Tensor()
	if err != nil {
		return value.Value{}, &dberr.TypeError{Op: "~=", Types: []string{l.Kind().String(), r.Kind().String()}}
	}
	rt, err := r.Tensor()
	if err != nil {
		return value.Value{}, &dberr.TypeError{Op: "~=", Types: []string{l.Kind().String(), r.Kind().String()}}
	}
	score, err := tensor.Cosine(lt, rt)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewFloat(score), nil
}

func evalArithmetic(op BinaryOp, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}
	kop := kernelOp(op)

	switch {
	case l.IsTensor() || r.IsTensor():
		lt, err := tensorOperand(l)
		if err != nil {
			return value.Value{}, typeErr(op, l, r)
		}
		rt, err := tensorOperand(r)
		if err != nil {
			return value.Value{}, typeErr(op, l, r)
		}
		out, err := tensor.Elementwise(kop, lt, rt)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case l.Kind() == value.KindString && r.Kind() == value.KindString && op == OpAdd:
		ls, _ := l.Str()
		rs, _ := r.Str()
		return value.NewString(ls + rs), nil

	case l.Kind() == value.KindInt && r.Kind() == value.KindInt:
		li, _ := l.Int()
		ri, _ := r.Int()
		switch op {
		case OpAdd:
			return value.NewInt(li + ri), nil
		case OpSub:
			return value.NewInt(li - ri), nil
		case OpMul:
			return value.NewInt(li * ri), nil
		default:
			if ri == 0 {
				return value.Value{}, &dberr.ArithmeticError{Reason: "division by zero"}
			}
			return value.NewInt(li / ri), nil
		}

	case l.IsNumeric() && r.IsNumeric():
		lf, _ := l.AsFloat()
		rf, _ := r.AsFloat()
		switch op {
		case OpAdd:
			return value.NewFloat(lf + rf), nil
		case OpSub:
			return value.NewFloat(lf - rf), nil
		case OpMul:
			return value.NewFloat(lf * rf), nil
		default:
			if rf == 0 {
				return value.Value{}, &dberr.ArithmeticError{Reason: "division by zero"}
			}
			return value.NewFloat(lf / rf), nil
		}

	default:
		return value.Value{}, typeErr(op, l, r)
	}
}

// tensorOperand views a value as a tensor: shape variants pass through and
// numeric scalars become rank-0 tensors for broadcasting.
func tensorOperand(v value.Value) (*tensor.Tensor, error) {
	if v.IsTensor() {
		return v.Tensor()
	}
	f, err := v.AsFloat()
	if err != nil {
		return nil, err
	}
	return tensor.Scalar(f), nil
}

func kernelOp(op BinaryOp) tensor.Op {
	switch op {
	case OpAdd:
		return tensor.OpAdd
	case OpSub:
		return tensor.OpSub
	case OpMul:
		return tensor.OpMul
	default:
		return tensor.OpDiv
	}
}

func typeErr(op BinaryOp, l, r value.Value) error {
	return &dberr.TypeError{Op: op.String(), Types: []string{l.Kind().String(), r.Kind().String()}}
}

func evalUnary(n *Unary, env Env) (value.Value, error) {
	v, err := Eval(n.X, env)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	switch n.Op {
	case OpNot:
		b, err := v.Bool()
		if err != nil {
			return value.Value{}, &dberr.TypeError{Op: "NOT", Types: []string{v.Kind().String()}}
		}
		return value.NewBool(!b), nil
	default:
		switch v.Kind() {
		case value.KindInt:
			i, _ := v.Int()
			return value.NewInt(-i), nil
		case value.KindFloat:
			f, _ := v.AsFloat()
			return value.NewFloat(-f), nil
		case value.KindVector, value.KindMatrix, value.KindTensor:
			t, _ := v.Tensor()
			return value.FromTensor(tensor.Scale(t, -1)), nil
		default:
			return value.Value{}, &dberr.TypeError{Op: "-", Types: []string{v.Kind().String()}}
		}
	}
}

// AggregateNames lists the call names the executor treats as aggregates
// inside SELECT. Outside a grouped query the same names reduce tensors.
var AggregateNames = map[string]bool{
	"COUNT": true,
	"SUM":   true,
	"AVG":   true,
	"MIN":   true,
	"MAX":   true,
}

func evalCall(n *Call, env Env) (value.Value, error) {
	name := strings.ToUpper(n.Name)
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, env)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}

	switch name {
	case "ADD", "SUB", "MUL", "DIV":
		if len(args) != 2 {
			return value.Value{}, argErr(name, args)
		}
		op := map[string]BinaryOp{"ADD": OpAdd, "SUB": OpSub, "MUL": OpMul, "DIV": OpDiv}[name]
		return evalArithmetic(op, args[0], args[1])

	case "DOT", "COSINE", "L2", "EUCLIDEAN":
		a, b, err := twoVectors(name, args)
		if err != nil {
			return value.Value{}, err
		}
		var f float64
		switch name {
		case "DOT":
			f, err = tensor.Dot(a, b)
		case "COSINE":
			f, err = tensor.Cosine(a, b)
		default:
			f, err = tensor.L2(a, b)
		}
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(f), nil

	case "NORMALIZE":
		t, err := oneTensor(name, args)
		if err != nil {
			return value.Value{}, err
		}
		out, err := tensor.Normalize(t)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case "MATMUL":
		if len(args) != 2 {
			return value.Value{}, argErr(name, args)
		}
		a, errA := args[0].Tensor()
		b, errB := args[1].Tensor()
		if errA != nil || errB != nil {
			return value.Value{}, argErr(name, args)
		}
		out, err := tensor.MatMul(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case "TRANSPOSE":
		t, err := oneTensor(name, args)
		if err != nil {
			return value.Value{}, err
		}
		out, err := tensor.Transpose(t)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case "RESHAPE":
		if len(args) < 2 {
			return value.Value{}, argErr(name, args)
		}
		t, err := args[0].Tensor()
		if err != nil {
			return value.Value{}, argErr(name, args)
		}
		dims := make([]int, len(args)-1)
		for i, d := range args[1:] {
			iv, err := d.Int()
			if err != nil {
				return value.Value{}, argErr(name, args)
			}
			dims[i] = int(iv)
		}
		out, err := tensor.Reshape(t, dims)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case "FLATTEN":
		t, err := oneTensor(name, args)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(tensor.Flatten(t)), nil

	case "STACK":
		if len(args) == 0 {
			return value.Value{}, argErr(name, args)
		}
		ts := make([]*tensor.Tensor, len(args))
		for i, a := range args {
			t, err := a.Tensor()
			if err != nil {
				return value.Value{}, argErr(name, args)
			}
			ts[i] = t
		}
		out, err := tensor.Stack(ts)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(out), nil

	case "SCALE":
		if len(args) != 2 {
			return value.Value{}, argErr(name, args)
		}
		t, err := args[0].Tensor()
		if err != nil {
			return value.Value{}, argErr(name, args)
		}
		s, err := args[1].AsFloat()
		if err != nil {
			return value.Value{}, argErr(name, args)
		}
		return value.FromTensor(tensor.Scale(t, s)), nil

	case "SUM", "MEAN", "AVG", "MIN", "MAX":
		if len(args) == 1 && args[0].IsTensor() {
			t, _ := args[0].Tensor()
			kind := map[string]tensor.ReduceKind{
				"SUM": tensor.ReduceSum, "MEAN": tensor.ReduceMean, "AVG": tensor.ReduceMean,
				"MIN": tensor.ReduceMin, "MAX": tensor.ReduceMax,
			}[name]
			f, err := tensor.Reduce(t, kind)
			if err != nil {
				return value.Value{}, err
			}
			return value.NewFloat(f), nil
		}
		return value.Value{}, &dberr.TypeError{Op: name, Types: typeNames(args)}

	case "COUNT":
		return value.Value{}, &dberr.TypeError{Op: name, Types: []string{"aggregate outside grouped query"}}

	default:
		return value.Value{}, &dberr.NotFound{Kind: "function", Name: n.Name}
	}
}

func twoVectors(name string, args []value.Value) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(args) != 2 {
		return nil, nil, argErr(name, args)
	}
	a, errA := args[0].Tensor()
	b, errB := args[1].Tensor()
	if errA != nil || errB != nil {
		return nil, nil, argErr(name, args)
	}
	return a, b, nil
}

func oneTensor(name string, args []value.Value) (*tensor.Tensor, error) {
	if len(args) != 1 {
		return nil, argErr(name, args)
	}
	t, err := args[0].Tensor()
	if err != nil {
		return nil, argErr(name, args)
	}
	return t, nil
}

func argErr(name string, args []value.Value) error {
	return &dberr.TypeError{Op: name, Types: typeNames(args)}
}

func typeNames(args []value.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Kind().String()
	}
	return out
}
