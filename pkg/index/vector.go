package index

import (
	"fmt"
	"sort"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// Candidate is one KNN result: a row id and its score under the index
// metric (cosine similarity, higher is better; euclidean distance, lower
// is better).
type Candidate struct {
	RowID int
	Score float64
}

type vectorEntry struct {
	rowID int
	vec   *tensor.Tensor
}

// Vector is a brute-force KNN index over one vector column. The metric is
// fixed at creation; queries under another metric are rejected.
type Vector struct {
	name    string
	column  string
	ordinal int
	metric  Metric
	entries []vectorEntry
}

// NewVector creates an empty vector index.
func NewVector(name, column string, ordinal int, metric Metric) *Vector {
	return &Vector{name: name, column: column, ordinal: ordinal, metric: metric}
}

// Name returns the index name.
func (v *Vector) Name() string { return v.name }

// Kind returns KindVector.
func (v *Vector) Kind() Kind { return KindVector }

// Columns returns the single target column.
func (v *Vector) Columns() []string { return []string{v.column} }

// Metric returns the metric fixed at creation.
func (v *Vector) Metric() Metric { return v.metric }

// Build rebuilds the index from the full row set.
func (v *Vector) Build(rows [][]value.Value) error {
	v.entries = v.entries[:0]
	for id, row := range rows {
		if err := v.OnInsert(row, id); err != nil {
			return err
		}
	}
	return nil
}

// OnInsert indexes one row. Null cells are skipped; non-vector cells are
// rejected.
func (v *Vector) OnInsert(row []value.Value, rowID int) error {
	cell := row[v.ordinal]
	if cell.IsNull() {
		return nil
	}
	t, err := cell.Tensor()
	if err != nil || t.Rank() != 1 {
		return &dberr.SchemaViolation{
			Field:  v.column,
			Reason: fmt.Sprintf("vector index %s requires rank-1 values", v.name),
		}
	}
	v.entries = append(v.entries, vectorEntry{rowID: rowID, vec: t})
	return nil
}

// Remove undoes an OnInsert of the same row and id.
func (v *Vector) Remove(row []value.Value, rowID int) {
	for i := len(v.entries) - 1; i >= 0; i-- {
		if v.entries[i].rowID == rowID {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

// Lookup is not offered by vector indexes.
func (v *Vector) Lookup(value.Value) ([]int, error) {
	return nil, &dberr.Unsupported{Op: "equality lookup on vector index"}
}

// KNN returns the k nearest rows to query under metric, ties broken by
// insertion order. A metric other than the index's creation metric is
// rejected.
func (v *Vector) KNN(query *tensor.Tensor, k int, metric Metric) ([]Candidate, error) {
	if metric != v.metric {
		return nil, &dberr.Unsupported{
			Op: fmt.Sprintf("%s query against %s index %s", metric, v.metric, v.name),
		}
	}
	if query.Rank() != 1 {
		return nil, dberr.Shapes([]int{query.Len()}, query.Shape())
	}
	out := make([]Candidate, 0, len(v.entries))
	for _, e := range v.entries {
		score, err := Score(query, e.vec, v.metric)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{RowID: e.rowID, Score: score})
	}
	SortCandidates(out, v.metric)
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Score computes the metric between a query and a stored vector.
func Score(query, vec *tensor.Tensor, metric Metric) (float64, error) {
	if metric == MetricEuclidean {
		return tensor.L2(query, vec)
	}
	return tensor.Cosine(query, vec)
}

// SortCandidates orders candidates best-first for the metric, keeping
// insertion order among equal scores.
func SortCandidates(cs []Candidate, metric Metric) {
	sort.SliceStable(cs, func(i, j int) bool {
		if metric == MetricEuclidean {
			return cs[i].Score < cs[j].Score
		}
		return cs[i].Score > cs[j].Score
	})
}
