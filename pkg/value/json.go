package value

import (
	"encoding/json"
	"fmt"

	"github.com/linaldb/linal/pkg/tensor"
)

// wireValue is the tagged JSON form of a Value, used by the storage
// adapter and the HTTP surface.
type wireValue struct {
	Type  string    `json:"type"`
	Int   *int64    `json:"int,omitempty"`
	Float *float64  `json:"float,omitempty"`
	Bool  *bool     `json:"bool,omitempty"`
	Str   *string   `json:"string,omitempty"`
	Shape []int     `json:"shape,omitempty"`
	Data  []float64 `json:"data,omitempty"`
}

// MarshalJSON encodes the value in tagged form.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.kind.String()}
	switch v.kind {
	case KindNull:
	case KindInt:
		w.Int = &v.i
	case KindFloat:
		w.Float = &v.f
	case KindBool:
		w.Bool = &v.b
	case KindString:
		w.Str = &v.s
	default:
		w.Shape = v.t.Shape()
		w.Data = v.t.Data()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "Null":
		*v = Null()
	case "Int":
		if w.Int == nil {
			return fmt.Errorf("missing int payload")
		}
		*v = NewInt(*w.Int)
	case "Float":
		if w.Float == nil {
			return fmt.Errorf("missing float payload")
		}
		*v = NewFloat(*w.Float)
	case "Bool":
		if w.Bool == nil {
			return fmt.Errorf("missing bool payload")
		}
		*v = NewBool(*w.Bool)
	case "String":
		if w.Str == nil {
			return fmt.Errorf("missing string payload")
		}
		*v = NewString(*w.Str)
	case "Vector", "Matrix", "Tensor":
		t, err := tensor.New(w.Shape, w.Data)
		if err != nil {
			return fmt.Errorf("invalid tensor payload: %w", err)
		}
		*v = FromTensor(t)
	default:
		return fmt.Errorf("unknown value type %q", w.Type)
	}
	return nil
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for c := KindNull; c <= KindTensor; c++ {
		if c.String() == name {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", name)
}

// MarshalJSON encodes the schema as its ordered field list.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

// UnmarshalJSON decodes an ordered field list.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	ns, err := NewSchema(fields)
	if err != nil {
		return err
	}
	*s = *ns
	return nil
}
