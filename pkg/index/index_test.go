package index

import (
	"errors"
	"testing"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

func intRow(vals ...int64) []value.Value {
	row := make([]value.Value, len(vals))
	for i, v := range vals {
		row[i] = value.NewInt(v)
	}
	return row
}

func vecRow(id int64, data ...float64) []value.Value {
	return []value.Value{value.NewInt(id), value.FromTensor(tensor.FromVector(data))}
}

func TestHashIndexAgreement(t *testing.T) {
	rows := [][]value.Value{
		intRow(1, 20),
		intRow(2, 22),
		intRow(3, 24),
		intRow(4, 22),
		intRow(5, 30),
	}
	h := NewHash("ix", "age", 1)
	if err := h.Build(rows); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Index agreement: lookup matches a full scan for every value.
	for _, probe := range []value.Value{value.NewInt(20), value.NewInt(22), value.NewInt(99)} {
		var want []int
		for id, row := range rows {
			if value.Equal(row[1], probe) {
				want = append(want, id)
			}
		}
		got, err := h.Lookup(probe)
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("lookup(%s) = %v, want %v", probe, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("lookup(%s) = %v, want %v (insertion order)", probe, got, want)
			}
		}
	}
}

func TestHashIndexPromotedLookup(t *testing.T) {
	h := NewHash("ix", "age", 0)
	if err := h.OnInsert([]value.Value{value.NewInt(22)}, 0); err != nil {
		t.Fatal(err)
	}
	ids, _ := h.Lookup(value.NewFloat(22.0))
	if len(ids) != 1 || ids[0] != 0 {
		t.Errorf("Float(22.0) should find Int(22), got %v", ids)
	}
}

func TestHashIndexIncrementalAndRemove(t *testing.T) {
	h := NewHash("ix", "c", 0)
	row := []value.Value{value.NewString("x")}
	if err := h.OnInsert(row, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.OnInsert(row, 1); err != nil {
		t.Fatal(err)
	}
	h.Remove(row, 1)
	ids, _ := h.Lookup(value.NewString("x"))
	if len(ids) != 1 || ids[0] != 0 {
		t.Errorf("after remove: %v", ids)
	}
}

func TestVectorKNNCosine(t *testing.T) {
	v := NewVector("vx", "emb", 1, MetricCosine)
	rows := [][]value.Value{
		vecRow(1, 1, 0, 0),
		vecRow(2, 0, 1, 0),
		vecRow(3, 0.9, 0.1, 0),
	}
	if err := v.Build(rows); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got, err := v.KNN(tensor.FromVector([]float64{1, 0, 0}), 2, MetricCosine)
	if err != nil {
		t.Fatalf("KNN failed: %v", err)
	}
	if len(got) != 2 || got[0].RowID != 0 || got[1].RowID != 2 {
		t.Errorf("KNN order = %+v, want rows 0 then 2", got)
	}
}

func TestVectorKNNEuclidean(t *testing.T) {
	v := NewVector("vx", "emb", 1, MetricEuclidean)
	rows := [][]value.Value{
		vecRow(1, 0, 0),
		vecRow(2, 3, 4),
		vecRow(3, 1, 1),
	}
	if err := v.Build(rows); err != nil {
		t.Fatal(err)
	}
	got, err := v.KNN(tensor.FromVector([]float64{0, 0}), 2, MetricEuclidean)
	if err != nil {
		t.Fatalf("KNN failed: %v", err)
	}
	if len(got) != 2 || got[0].RowID != 0 || got[1].RowID != 2 {
		t.Errorf("KNN order = %+v", got)
	}
}

func TestVectorKNNTiesKeepInsertionOrder(t *testing.T) {
	v := NewVector("vx", "emb", 1, MetricCosine)
	rows := [][]value.Value{
		vecRow(1, 1, 0),
		vecRow(2, 2, 0), // same direction, same cosine
		vecRow(3, 0, 1),
	}
	if err := v.Build(rows); err != nil {
		t.Fatal(err)
	}
	got, err := v.KNN(tensor.FromVector([]float64{1, 0}), 3, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].RowID != 0 || got[1].RowID != 1 {
		t.Errorf("ties should keep insertion order, got %+v", got)
	}
}

func TestVectorKNNRejectsMixedMetric(t *testing.T) {
	v := NewVector("vx", "emb", 1, MetricCosine)
	_, err := v.KNN(tensor.FromVector([]float64{1, 0}), 1, MetricEuclidean)
	var unsup *dberr.Unsupported
	if !errors.As(err, &unsup) {
		t.Fatalf("expected Unsupported, got %v", err)
	}
}

func TestVectorIndexSkipsNullAndRejectsNonVector(t *testing.T) {
	v := NewVector("vx", "emb", 1, MetricCosine)
	if err := v.OnInsert([]value.Value{value.NewInt(1), value.Null()}, 0); err != nil {
		t.Fatalf("null cell should be skipped: %v", err)
	}
	if err := v.OnInsert([]value.Value{value.NewInt(2), value.NewInt(7)}, 1); err == nil {
		t.Error("non-vector cell should be rejected")
	}
	got, err := v.KNN(tensor.FromVector([]float64{1}), 5, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty index, got %+v", got)
	}
}

func TestVectorLookupUnsupported(t *testing.T) {
	v := NewVector("vx", "emb", 0, MetricCosine)
	if _, err := v.Lookup(value.NewInt(1)); err == nil {
		t.Error("expected Unsupported")
	}
}

func TestNewFromDefinition(t *testing.T) {
	h := New(Definition{Name: "a", Kind: KindHash, Column: "c"}, 0)
	if h.Kind() != KindHash || h.Name() != "a" {
		t.Errorf("unexpected hash index %v %v", h.Kind(), h.Name())
	}
	v := New(Definition{Name: "b", Kind: KindVector, Column: "e", Metric: MetricEuclidean}, 1)
	vi, ok := v.(*Vector)
	if !ok || vi.Metric() != MetricEuclidean {
		t.Errorf("unexpected vector index %#v", v)
	}
}
