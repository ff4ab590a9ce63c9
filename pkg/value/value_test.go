package value

import (
	"encoding/json"
	"testing"

	"github.com/linaldb/linal/pkg/tensor"
)

func TestCompareOrdering(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Value
		want    int
		wantErr bool
	}{
		{name: "null sorts first", a: Null(), b: NewInt(0), want: -1},
		{name: "null equals null", a: Null(), b: Null(), want: 0},
		{name: "int ordering", a: NewInt(1), b: NewInt(2), want: -1},
		{name: "cross-type numeric promotes", a: NewInt(2), b: NewFloat(1.5), want: 1},
		{name: "int equals float", a: NewInt(2), b: NewFloat(2.0), want: 0},
		{name: "string ordering", a: NewString("a"), b: NewString("b"), want: -1},
		{name: "bool ordering", a: NewBool(false), b: NewBool(true), want: -1},
		{name: "string vs int fails", a: NewString("a"), b: NewInt(1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEqualityIsStructural(t *testing.T) {
	v1 := FromTensor(tensor.FromVector([]float64{1, 2, 3}))
	v2 := FromTensor(tensor.FromVector([]float64{1, 2, 3}))
	v3 := FromTensor(tensor.FromVector([]float64{1, 2, 4}))
	if !Equal(v1, v2) {
		t.Error("identical vectors should be equal")
	}
	if Equal(v1, v3) {
		t.Error("different vectors should not be equal")
	}
	if !Equal(NewInt(22), NewFloat(22)) {
		t.Error("numeric equality should promote")
	}
	if Equal(NewString("1"), NewInt(1)) {
		t.Error("string and int must not compare equal")
	}
}

func TestKeyPromotesNumerics(t *testing.T) {
	if Key(NewInt(22)) != Key(NewFloat(22.0)) {
		t.Error("Int(22) and Float(22.0) should share a hash key")
	}
	if Key(NewInt(1)) == Key(NewBool(true)) {
		t.Error("kinds must not collide in key space")
	}
	if Key(Null()) == Key(NewString("")) {
		t.Error("null key must be distinct")
	}
}

func TestFromTensorClassifiesByRank(t *testing.T) {
	vec := FromTensor(tensor.FromVector([]float64{1}))
	if vec.Kind() != KindVector {
		t.Errorf("rank-1 should be Vector, got %s", vec.Kind())
	}
	m, _ := tensor.New([]int{1, 1}, []float64{1})
	if FromTensor(m).Kind() != KindMatrix {
		t.Error("rank-2 should be Matrix")
	}
	cube, _ := tensor.New([]int{1, 1, 1}, []float64{1})
	if FromTensor(cube).Kind() != KindTensor {
		t.Error("rank-3 should be Tensor")
	}
}

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]Field{
		{Name: "id", Type: Type{Kind: KindInt}},
		{Name: "score", Type: Type{Kind: KindFloat}},
		{Name: "tag", Type: Type{Kind: KindString}, Nullable: true},
		{Name: "emb", Type: Type{Kind: KindVector, Dims: []int{3}}},
	})
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

func TestSchemaValidate(t *testing.T) {
	s := testSchema(t)
	vec := FromTensor(tensor.FromVector([]float64{1, 0, 0}))

	t.Run("valid row with promotion", func(t *testing.T) {
		row, err := s.Validate([]Value{NewInt(1), NewInt(5), Null(), vec})
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if row[1].Kind() != KindFloat {
			t.Errorf("Int should promote to Float on insert, got %s", row[1].Kind())
		}
	})

	t.Run("null in non-nullable field", func(t *testing.T) {
		if _, err := s.Validate([]Value{Null(), NewFloat(1), Null(), vec}); err == nil {
			t.Error("expected schema violation")
		}
	})

	t.Run("wrong arity", func(t *testing.T) {
		if _, err := s.Validate([]Value{NewInt(1)}); err == nil {
			t.Error("expected schema violation")
		}
	})

	t.Run("tensor shape contract", func(t *testing.T) {
		short := FromTensor(tensor.FromVector([]float64{1, 0}))
		if _, err := s.Validate([]Value{NewInt(1), NewFloat(1), Null(), short}); err == nil {
			t.Error("expected shape violation")
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		if _, err := s.Validate([]Value{NewString("x"), NewFloat(1), Null(), vec}); err == nil {
			t.Error("expected type violation")
		}
	})
}

func TestSchemaRejectsDuplicateNames(t *testing.T) {
	_, err := NewSchema([]Field{
		{Name: "a", Type: Type{Kind: KindInt}},
		{Name: "a", Type: Type{Kind: KindInt}},
	})
	if err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	m, _ := tensor.New([]int{2, 2}, []float64{1, 2, 3, 4})
	values := []Value{
		Null(),
		NewInt(42),
		NewFloat(3.5),
		NewBool(true),
		NewString("hello"),
		FromTensor(tensor.FromVector([]float64{1, 0, 0})),
		FromTensor(m),
	}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", v.Kind(), err)
		}
		var back Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", v.Kind(), err)
		}
		if !Equal(v, back) || v.Kind() != back.Kind() {
			t.Errorf("round trip changed %s: %s -> %s", v.Kind(), v, back)
		}
	}
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	s := testSchema(t)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var back Schema
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if back.Len() != s.Len() {
		t.Fatalf("field count changed: %d != %d", back.Len(), s.Len())
	}
	for i := 0; i < s.Len(); i++ {
		if s.Field(i).Name != back.Field(i).Name || s.Field(i).Type.String() != back.Field(i).Type.String() {
			t.Errorf("field %d changed: %+v != %+v", i, s.Field(i), back.Field(i))
		}
	}
}

func TestTypeString(t *testing.T) {
	if got := (Type{Kind: KindVector, Dims: []int{3}}).String(); got != "Vector(3)" {
		t.Errorf("got %q", got)
	}
	if got := (Type{Kind: KindMatrix, Dims: []int{2, 2}}).String(); got != "Matrix(2,2)" {
		t.Errorf("got %q", got)
	}
	if got := (Type{Kind: KindInt}).String(); got != "Int" {
		t.Errorf("got %q", got)
	}
}
