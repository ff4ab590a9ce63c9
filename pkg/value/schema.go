package value

import (
	"fmt"
	"strings"

	"github.com/linaldb/linal/pkg/dberr"
)

// Type is a declared schema type. Shape variants fix their dimensions:
// Vector(n) and Matrix(m,n) are contracts every inserted value must meet.
type Type struct {
	Kind Kind  `json:"kind"`
	Dims []int `json:"dims,omitempty"`
}

// String renders the type the way the command language spells it.
func (t Type) String() string {
	if len(t.Dims) == 0 {
		return t.Kind.String()
	}
	parts := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s(%s)", t.Kind.String(), strings.Join(parts, ","))
}

// Field is one schema column.
type Field struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Schema is an ordered field list; field order is the canonical
// projection order for SELECT *.
type Schema struct {
	fields []Field
	byName map[string]int
}

// NewSchema builds a schema, rejecting duplicate field names.
func NewSchema(fields []Field) (*Schema, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, &dberr.SchemaViolation{Reason: "empty field name"}
		}
		if _, dup := byName[f.Name]; dup {
			return nil, &dberr.SchemaViolation{Field: f.Name, Reason: "duplicate field name"}
		}
		byName[f.Name] = i
	}
	return &Schema{fields: fields, byName: byName}, nil
}

// Len returns the field count.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the ordered field list.
func (s *Schema) Fields() []Field { return s.fields }

// Field returns the field at ordinal i.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Index returns the ordinal of a named field.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Names returns the column names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// WithField returns a new schema extended by one field.
func (s *Schema) WithField(f Field) (*Schema, error) {
	fields := make([]Field, 0, len(s.fields)+1)
	fields = append(fields, s.fields...)
	fields = append(fields, f)
	return NewSchema(fields)
}

// Validate checks a candidate row against the schema and returns the row
// in stored form: Int values destined for Float columns are promoted.
func (s *Schema) Validate(row []Value) ([]Value, error) {
	if len(row) != len(s.fields) {
		return nil, &dberr.SchemaViolation{
			Reason: fmt.Sprintf("expected %d values, got %d", len(s.fields), len(row)),
		}
	}
	out := make([]Value, len(row))
	for i, v := range row {
		stored, err := coerce(s.fields[i], v)
		if err != nil {
			return nil, err
		}
		out[i] = stored
	}
	return out, nil
}

// ValidateCell checks one value against the field at ordinal i and
// returns it in stored form.
func (s *Schema) ValidateCell(i int, v Value) (Value, error) {
	return coerce(s.fields[i], v)
}

// coerce checks one value against its field and applies Int→Float
// promotion. Tensor-typed fields require an exact shape match.
func coerce(f Field, v Value) (Value, error) {
	if v.IsNull() {
		if !f.Nullable {
			return Value{}, &dberr.SchemaViolation{Field: f.Name, Reason: "null value in non-nullable field"}
		}
		return v, nil
	}
	switch f.Type.Kind {
	case KindFloat:
		if v.Kind() == KindInt {
			fl, _ := v.AsFloat()
			return NewFloat(fl), nil
		}
		if v.Kind() != KindFloat {
			return Value{}, typeMismatch(f, v)
		}
		return v, nil
	case KindVector, KindMatrix, KindTensor:
		if v.Kind() != f.Type.Kind {
			return Value{}, typeMismatch(f, v)
		}
		t, _ := v.Tensor()
		if !shapeEqual(t.Shape(), f.Type.Dims) {
			return Value{}, &dberr.SchemaViolation{
				Field:  f.Name,
				Reason: dberr.Shapes(f.Type.Dims, t.Shape()).Error(),
			}
		}
		return v, nil
	default:
		if v.Kind() != f.Type.Kind {
			return Value{}, typeMismatch(f, v)
		}
		return v, nil
	}
}

func typeMismatch(f Field, v Value) error {
	return &dberr.SchemaViolation{
		Field:  f.Name,
		Reason: fmt.Sprintf("expected %s, got %s", f.Type, v.Kind()),
	}
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
