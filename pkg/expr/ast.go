package expr

import (
	"fmt"
	"strings"

	"github.com/linaldb/linal/pkg/value"
)

// Expr is a semantic expression node evaluated against an environment.
type Expr interface {
	fmt.Stringer
	exprNode()
}

// Literal wraps a constant value.
type Literal struct {
	Value value.Value
}

// ColumnRef names a row column or an ambient binding; row columns shadow
// ambient names.
type ColumnRef struct {
	Name string
}

// ComputedLookup forces resolution of a dataset column (including lazy
// expansion) without falling back to ambient names.
type ComputedLookup struct {
	Column string
}

// TupleField is dot-access on a named base, e.g. a qualified column or a
// metadata member.
type TupleField struct {
	X    Expr
	Name string
}

// IndexTerm is one position of a tensor index: a literal or a wildcard.
type IndexTerm struct {
	Wildcard bool
	Index    int
}

// TensorIndex selects from a tensor expression; result rank equals the
// number of wildcard terms.
type TensorIndex struct {
	X       Expr
	Indices []IndexTerm
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpSim // similarity operator ~=
)

// String returns the operator's surface spelling.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "~="
	}
}

// Binary applies an operator to two operands.
type Binary struct {
	Op BinaryOp
	L  Expr
	R  Expr
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Unary applies an operator to one operand.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Call invokes a named function. Star marks COUNT(*).
type Call struct {
	Name string
	Args []Expr
	Star bool
}

func (*Literal) exprNode()        {}
func (*ColumnRef) exprNode()      {}
func (*ComputedLookup) exprNode() {}
func (*TupleField) exprNode()     {}
func (*TensorIndex) exprNode()    {}
func (*Binary) exprNode()         {}
func (*Unary) exprNode()          {}
func (*Call) exprNode()           {}

func (e *Literal) String() string        { return e.Value.String() }
func (e *ColumnRef) String() string      { return e.Name }
func (e *ComputedLookup) String() string { return e.Column }
func (e *TupleField) String() string     { return e.X.String() + "." + e.Name }

func (e *TensorIndex) String() string {
	parts := make([]string, len(e.Indices))
	for i, t := range e.Indices {
		if t.Wildcard {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprintf("%d", t.Index)
		}
	}
	return fmt.Sprintf("%s[%s]", e.X, strings.Join(parts, ", "))
}

// String parenthesizes so rendered sources re-parse with the same
// structure.
func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.L, e.Op, e.R)
}

func (e *Unary) String() string {
	if e.Op == OpNot {
		return "NOT " + e.X.String()
	}
	return "-" + e.X.String()
}

func (e *Call) String() string {
	if e.Star {
		return e.Name + "(*)"
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}

// Columns collects the names of all column references in an expression.
func Columns(e Expr) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *ColumnRef:
			if !seen[n.Name] {
				seen[n.Name] = true
				out = append(out, n.Name)
			}
		case *ComputedLookup:
			if !seen[n.Column] {
				seen[n.Column] = true
				out = append(out, n.Column)
			}
		case *TupleField:
			walk(n.X)
		case *TensorIndex:
			walk(n.X)
		case *Binary:
			walk(n.L)
			walk(n.R)
		case *Unary:
			walk(n.X)
		case *Call:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return out
}
