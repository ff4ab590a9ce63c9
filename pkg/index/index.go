package index

import (
	"github.com/linaldb/linal/pkg/value"
)

// Kind discriminates index implementations.
type Kind string

const (
	KindHash   Kind = "hash"
	KindVector Kind = "vector"
)

// Metric names a vector similarity metric. It is fixed at index creation.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// Index is the capability contract every dataset index implements.
// Implementations are chosen by the index registry, not by inheritance.
type Index interface {
	Name() string
	Kind() Kind
	Columns() []string
	// Build replaces the index contents with a full scan of rows.
	Build(rows [][]value.Value) error
	// OnInsert adds one row. It must either index the row or leave the
	// index unchanged and return an error.
	OnInsert(row []value.Value, rowID int) error
	// Remove undoes an OnInsert; the store uses it to roll back a
	// rejected insertion.
	Remove(row []value.Value, rowID int)
	// Lookup returns row ids whose indexed value equals v, in insertion
	// order. Vector indexes report Unsupported.
	Lookup(v value.Value) ([]int, error)
}

// Definition is the persistable description of an index; bootstrap
// rebuilds indexes from definitions after recovery.
type Definition struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Column string `json:"column"`
	Metric Metric `json:"metric,omitempty"`
}

// New constructs an index from its definition and the ordinal of its
// target column.
func New(def Definition, ordinal int) Index {
	if def.Kind == KindVector {
		return NewVector(def.Name, def.Column, ordinal, def.Metric)
	}
	return NewHash(def.Name, def.Column, ordinal)
}
