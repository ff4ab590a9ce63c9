package tensor

import (
	"errors"
	"math"
	"testing"

	"github.com/linaldb/linal/pkg/dberr"
)

func mustNew(t *testing.T, shape []int, data []float64) *Tensor {
	t.Helper()
	tn, err := New(shape, data)
	if err != nil {
		t.Fatalf("New(%v) failed: %v", shape, err)
	}
	return tn
}

func TestNewValidatesShapeProduct(t *testing.T) {
	if _, err := New([]int{2, 3}, []float64{1, 2, 3}); err == nil {
		t.Fatal("expected shape/data mismatch error")
	}
	tn := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	if tn.Len() != 6 || tn.Rank() != 2 {
		t.Errorf("unexpected len=%d rank=%d", tn.Len(), tn.Rank())
	}
	s := Scalar(4)
	if s.Rank() != 0 || s.Len() != 1 {
		t.Errorf("scalar should be rank 0 with one element")
	}
}

func TestElementwise(t *testing.T) {
	tests := []struct {
		name     string
		op       Op
		a, b     *Tensor
		want     []float64
		wantDims []int
		wantErr  bool
	}{
		{
			name: "same shape add",
			op:   OpAdd,
			a:    mustNew(t, []int{2, 2}, []float64{1, 2, 3, 4}),
			b:    mustNew(t, []int{2, 2}, []float64{10, 20, 30, 40}),
			want: []float64{11, 22, 33, 44}, wantDims: []int{2, 2},
		},
		{
			name: "scalar broadcast mul",
			op:   OpMul,
			a:    Scalar(2),
			b:    mustNew(t, []int{3}, []float64{1, 2, 3}),
			want: []float64{2, 4, 6}, wantDims: []int{3},
		},
		{
			name: "padded add uses zero identity",
			op:   OpAdd,
			a:    FromVector([]float64{1, 2, 3}),
			b:    FromVector([]float64{10, 20, 30, 40, 50}),
			want: []float64{11, 22, 33, 40, 50}, wantDims: []int{5},
		},
		{
			name: "padded mul uses one identity",
			op:   OpMul,
			a:    FromVector([]float64{2, 2}),
			b:    FromVector([]float64{3, 3, 3}),
			want: []float64{6, 6, 3}, wantDims: []int{3},
		},
		{
			name: "padded sub keeps long tail",
			op:   OpSub,
			a:    FromVector([]float64{5, 5, 5, 5}),
			b:    FromVector([]float64{1, 1}),
			want: []float64{4, 4, 5, 5}, wantDims: []int{4},
		},
		{
			name:    "strict rejects mismatched shapes",
			op:      OpAdd,
			a:       FromVector([]float64{1, 2, 3}).AsStrict(),
			b:       FromVector([]float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "rank mismatch fails in relaxed mode",
			op:      OpAdd,
			a:       mustNew(t, []int{2, 2}, []float64{1, 2, 3, 4}),
			b:       FromVector([]float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "division by zero",
			op:      OpDiv,
			a:       FromVector([]float64{1, 2}),
			b:       FromVector([]float64{1, 0}),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Elementwise(tt.op, tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Elementwise() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			want := mustNew(t, tt.wantDims, tt.want)
			if !got.Equal(want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestStrictDivisionByZeroFastPath(t *testing.T) {
	a := FromVector([]float64{1, 2}).AsStrict()
	b := FromVector([]float64{2, 0})
	_, err := Div(a, b)
	var arith *dberr.ArithmeticError
	if !errors.As(err, &arith) {
		t.Fatalf("expected ArithmeticError, got %v", err)
	}
}

func TestMatMul(t *testing.T) {
	a := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	b := mustNew(t, []int{3, 2}, []float64{7, 8, 9, 10, 11, 12})
	got, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	want := mustNew(t, []int{2, 2}, []float64{58, 64, 139, 154})
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := MatMul(a, a); err == nil {
		t.Error("expected inner dimension mismatch error")
	}
	if _, err := MatMul(FromVector([]float64{1}), b); err == nil {
		t.Error("expected rank error for non-matrix operand")
	}
}

func TestTranspose(t *testing.T) {
	a := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	got, err := Transpose(a)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	want := mustNew(t, []int{3, 2}, []float64{1, 4, 2, 5, 3, 6})
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := Transpose(FromVector([]float64{1, 2})); err == nil {
		t.Error("expected rank error")
	}
}

func TestReshapeRoundTrip(t *testing.T) {
	a := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	r, err := Reshape(a, []int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	back, err := Reshape(r, []int{2, 3})
	if err != nil {
		t.Fatalf("Reshape back failed: %v", err)
	}
	if !back.Equal(a) {
		t.Errorf("reshape round-trip changed tensor: %v != %v", back, a)
	}
	if _, err := Reshape(a, []int{4, 2}); err == nil {
		t.Error("expected product mismatch error")
	}
	f := Flatten(a)
	if f.Rank() != 1 || f.Len() != 6 {
		t.Errorf("flatten gave %v", f.Shape())
	}
}

func TestStack(t *testing.T) {
	a := FromVector([]float64{1, 2})
	b := FromVector([]float64{3, 4})
	got, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	want := mustNew(t, []int{2, 2}, []float64{1, 2, 3, 4})
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := Stack([]*Tensor{a, FromVector([]float64{1, 2, 3})}); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestIndexing(t *testing.T) {
	a := mustNew(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	full, err := Index(a, []AxisTerm{{Index: 1}, {Index: 2}})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if v, _ := full.ScalarValue(); v != 6 {
		t.Errorf("a[1,2] = %v, want 6", v)
	}

	row, err := Index(a, []AxisTerm{{Index: 0}, {Wildcard: true}})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if !row.Equal(FromVector([]float64{1, 2, 3})) {
		t.Errorf("a[0,*] = %v", row)
	}

	col, err := Index(a, []AxisTerm{{Wildcard: true}, {Index: 1}})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if !col.Equal(FromVector([]float64{2, 5})) {
		t.Errorf("a[*,1] = %v", col)
	}

	_, err = Index(a, []AxisTerm{{Index: 0}, {Index: 5}})
	var oor *dberr.IndexOutOfRange
	if !errors.As(err, &oor) {
		t.Fatalf("expected IndexOutOfRange, got %v", err)
	}
}

func TestVectorMetrics(t *testing.T) {
	a := FromVector([]float64{1, 0, 0})
	b := FromVector([]float64{0, 1, 0})

	if d, _ := Dot(a, a); d != 1 {
		t.Errorf("dot = %v, want 1", d)
	}
	if c, _ := Cosine(a, b); c != 0 {
		t.Errorf("cosine of orthogonal vectors = %v, want 0", c)
	}
	if c, _ := Cosine(a, FromVector([]float64{0, 0, 0})); c != 0 {
		t.Errorf("cosine with zero vector = %v, want 0 without error", c)
	}
	if d, _ := L2(a, b); math.Abs(d-math.Sqrt2) > 1e-12 {
		t.Errorf("l2 = %v, want sqrt(2)", d)
	}
	if _, err := Dot(a, FromVector([]float64{1, 2})); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestNormalize(t *testing.T) {
	a := FromVector([]float64{3, 4})
	n, err := Normalize(a)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !n.EqualApprox(FromVector([]float64{0.6, 0.8}), 1e-12) {
		t.Errorf("normalize = %v", n)
	}

	// Idempotence modulo tolerance.
	n2, err := Normalize(n)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	var norm float64
	for _, v := range n2.Data() {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Errorf("norm of normalize(normalize(a)) = %v", math.Sqrt(norm))
	}

	zero := FromVector([]float64{0, 0})
	z, err := Normalize(zero)
	if err != nil {
		t.Fatalf("Normalize of zero vector failed: %v", err)
	}
	if !z.Equal(zero) {
		t.Errorf("zero vector changed under normalize: %v", z)
	}
}

func TestScaleAndReduce(t *testing.T) {
	a := mustNew(t, []int{2, 2}, []float64{1, 2, 3, 4})
	s := Scale(a, 2)
	if !s.Equal(mustNew(t, []int{2, 2}, []float64{2, 4, 6, 8})) {
		t.Errorf("scale = %v", s)
	}
	if sum, _ := Reduce(a, ReduceSum); sum != 10 {
		t.Errorf("sum = %v", sum)
	}
	if mean, _ := Reduce(a, ReduceMean); mean != 2.5 {
		t.Errorf("mean = %v", mean)
	}
	if mn, _ := Reduce(a, ReduceMin); mn != 1 {
		t.Errorf("min = %v", mn)
	}
	if mx, _ := Reduce(a, ReduceMax); mx != 4 {
		t.Errorf("max = %v", mx)
	}
}

func TestImmutability(t *testing.T) {
	a := FromVector([]float64{1, 2, 3})
	b := FromVector([]float64{1, 1, 1})
	if _, err := Add(a, b); err != nil {
		t.Fatal(err)
	}
	if !a.Equal(FromVector([]float64{1, 2, 3})) {
		t.Error("input tensor was mutated by Add")
	}
}
