package engine

import (
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/value"
)

// Kind tags the payload of a command result.
type Kind string

const (
	KindOK      Kind = "ok"
	KindScalar  Kind = "scalar"
	KindVector  Kind = "vector"
	KindMatrix  Kind = "matrix"
	KindTensor  Kind = "tensor"
	KindDataset Kind = "dataset"
	KindPlan    Kind = "plan"
	KindList    Kind = "list"
	KindError   Kind = "error"
)

// Table is a tabular payload: named columns and value rows.
type Table struct {
	Columns []string        `json:"columns"`
	Rows    [][]value.Value `json:"rows"`
}

// Output is the envelope every command produces. Rendering it as text or
// JSON is the formatter's concern.
type Output struct {
	Kind    Kind         `json:"kind"`
	Message string       `json:"message,omitempty"`
	Value   *value.Value `json:"value,omitempty"`
	Table   *Table       `json:"table,omitempty"`
	Plan    string       `json:"plan,omitempty"`
	Code    dberr.Code   `json:"code,omitempty"`
}

// OK wraps a plain acknowledgment.
func OK(message string) *Output {
	return &Output{Kind: KindOK, Message: message}
}

// FromValue wraps a single value, tagging the kind by its runtime type.
func FromValue(v value.Value, message string) *Output {
	kind := KindScalar
	switch v.Kind() {
	case value.KindVector:
		kind = KindVector
	case value.KindMatrix:
		kind = KindMatrix
	case value.KindTensor:
		kind = KindTensor
	}
	return &Output{Kind: kind, Message: message, Value: &v}
}

// FromTable wraps a tabular payload.
func FromTable(t *Table, message string) *Output {
	return &Output{Kind: KindDataset, Message: message, Table: t}
}

// FromList wraps a single-column name listing.
func FromList(column string, names []string, message string) *Output {
	t := &Table{Columns: []string{column}}
	for _, n := range names {
		t.Rows = append(t.Rows, []value.Value{value.NewString(n)})
	}
	return &Output{Kind: KindList, Message: message, Table: t}
}

// FromPlan wraps a rendered plan tree.
func FromPlan(plan string) *Output {
	return &Output{Kind: KindPlan, Plan: plan}
}

// FromError wraps an error with its taxonomy code. Errors abort the
// current command and surface verbatim.
func FromError(err error) *Output {
	return &Output{Kind: KindError, Message: err.Error(), Code: dberr.CodeOf(err)}
}
