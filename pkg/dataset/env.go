package dataset

import (
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/value"
)

// rowEnv scopes expression evaluation to one stored row. Row columns
// shadow ambient names; lazy columns expand through their stored
// expression with re-entry detection.
type rowEnv struct {
	ds         *Dataset
	rowID      int
	ambient    expr.Env
	inProgress map[string]bool
}

// RowEnv returns the evaluation environment for one row. The ambient
// environment resolves free names (named tensors, LET bindings) and may
// be nil.
func (d *Dataset) RowEnv(rowID int, ambient expr.Env) expr.Env {
	return &rowEnv{ds: d, rowID: rowID, ambient: ambient}
}

// Resolve looks a name up in the row first, then in the ambient scope.
func (e *rowEnv) Resolve(name string) (value.Value, bool, error) {
	if ord, ok := e.ds.schema.Index(name); ok {
		v, err := e.column(name, ord)
		return v, true, err
	}
	if e.ambient != nil {
		return e.ambient.Resolve(name)
	}
	return value.Value{}, false, nil
}

// ResolveColumn looks a name up in row scope only.
func (e *rowEnv) ResolveColumn(name string) (value.Value, bool, error) {
	ord, ok := e.ds.schema.Index(name)
	if !ok {
		return value.Value{}, false, nil
	}
	v, err := e.column(name, ord)
	return v, true, err
}

// Member resolves dataset-qualified column access; other bases fall
// through to the ambient scope.
func (e *rowEnv) Member(base, name string) (value.Value, bool, error) {
	if base == e.ds.Name {
		return e.ResolveColumn(name)
	}
	if e.ambient != nil {
		return e.ambient.Member(base, name)
	}
	return value.Value{}, false, nil
}

// column reads one cell, expanding a lazy column through its stored
// expression. A lazy column re-entered while already being evaluated in
// this environment is a cycle.
func (e *rowEnv) column(name string, ord int) (value.Value, error) {
	cc := e.ds.Computed(name)
	if cc == nil || !cc.Lazy {
		return e.ds.rows[e.rowID][ord], nil
	}
	if e.inProgress[name] {
		return value.Value{}, &dberr.CyclicExpression{Column: name}
	}
	if e.inProgress == nil {
		e.inProgress = map[string]bool{}
	}
	e.inProgress[name] = true
	defer delete(e.inProgress, name)
	return expr.Eval(cc.Expr, e)
}

// partialEnv evaluates insert-time computed columns against the row
// prefix assembled so far.
type partialEnv struct {
	ds  *Dataset
	row []value.Value
}

func (e *partialEnv) Resolve(name string) (value.Value, bool, error) {
	return e.ResolveColumn(name)
}

func (e *partialEnv) ResolveColumn(name string) (value.Value, bool, error) {
	ord, ok := e.ds.schema.Index(name)
	if !ok || ord >= len(e.row) {
		return value.Value{}, false, nil
	}
	return e.row[ord], true, nil
}

func (e *partialEnv) Member(base, name string) (value.Value, bool, error) {
	if base == e.ds.Name {
		return e.ResolveColumn(name)
	}
	return value.Value{}, false, nil
}
