package query

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// aggSpec is one aggregate to maintain per group, named by its surface
// spelling (e.g. "SUM(f)").
type aggSpec struct {
	name string
	call *expr.Call
}

// groupOp hash-groups its input on the key columns and folds each
// aggregate. The grouped row binds key columns and aggregate results by
// name; HAVING filters those rows after aggregation.
type groupOp struct {
	keys   []string
	aggs   []aggSpec
	having expr.Expr
	in     operator

	out []*frame
	pos int
}

func (g *groupOp) open(e *ExecContext) error {
	if err := g.in.open(e); err != nil {
		return err
	}
	type group struct {
		keyVals []value.Value
		states  []aggregator
	}
	groups := map[string]*group{}
	var order []string

	newGroup := func(keyVals []value.Value) (*group, error) {
		states := make([]aggregator, len(g.aggs))
		for i, spec := range g.aggs {
			st, err := newAggregator(spec.call)
			if err != nil {
				return nil, err
			}
			states[i] = st
		}
		return &group{keyVals: keyVals, states: states}, nil
	}

	for {
		if err := e.Check(); err != nil {
			return err
		}
		fr, err := g.in.next(e)
		if err != nil {
			return err
		}
		if fr == nil {
			break
		}
		keyVals := make([]value.Value, len(g.keys))
		var kb strings.Builder
		for i, k := range g.keys {
			v, err := fr.get(k)
			if err != nil {
				return err
			}
			keyVals[i] = v
			kb.WriteString(value.Key(v))
			kb.WriteByte(0x1f)
		}
		key := kb.String()
		grp, ok := groups[key]
		if !ok {
			grp, err = newGroup(keyVals)
			if err != nil {
				return err
			}
			groups[key] = grp
			order = append(order, key)
		} else {
			// Grouping column type is inferred from the first non-Null
			// occurrence.
			for i, v := range keyVals {
				if grp.keyVals[i].IsNull() && !v.IsNull() {
					grp.keyVals[i] = v
				}
			}
		}
		for i, spec := range g.aggs {
			var arg value.Value
			if !spec.call.Star {
				arg, err = expr.Eval(spec.call.Args[0], fr.env)
				if err != nil {
					return err
				}
			}
			if err := grp.states[i].add(arg); err != nil {
				return err
			}
		}
	}

	// An ungrouped aggregate query always yields one row, even over an
	// empty input.
	if len(g.keys) == 0 && len(order) == 0 {
		grp, err := newGroup(nil)
		if err != nil {
			return err
		}
		groups[""] = grp
		order = append(order, "")
	}

	cols := append(append([]string{}, g.keys...), aggNames(g.aggs)...)
	for _, key := range order {
		grp := groups[key]
		vals := make([]value.Value, 0, len(cols))
		env := expr.MapEnv{}
		for i, k := range g.keys {
			vals = append(vals, grp.keyVals[i])
			env[k] = grp.keyVals[i]
		}
		for i, spec := range g.aggs {
			v, err := grp.states[i].result()
			if err != nil {
				return err
			}
			vals = append(vals, v)
			env[spec.name] = v
		}
		fr := &frame{env: env, cols: cols, vals: vals}
		if g.having != nil {
			hv, err := expr.Eval(g.having, env)
			if err != nil {
				return err
			}
			if hv.IsNull() {
				continue
			}
			keep, err := hv.Bool()
			if err != nil {
				return &dberr.TypeError{Op: "HAVING", Types: []string{hv.Kind().String()}}
			}
			if !keep {
				continue
			}
		}
		g.out = append(g.out, fr)
	}
	g.pos = 0
	return nil
}

func (g *groupOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if g.pos >= len(g.out) {
		return nil, nil
	}
	fr := g.out[g.pos]
	g.pos++
	return fr, nil
}

func (g *groupOp) close()          { g.out = nil; g.in.close() }
func (g *groupOp) child() operator { return g.in }

func (g *groupOp) explain() string {
	parts := fmt.Sprintf("GroupBy(keys=[%s] aggs=[%s]", strings.Join(g.keys, ", "), strings.Join(aggNames(g.aggs), ", "))
	if g.having != nil {
		parts += fmt.Sprintf(" having=%s", g.having)
	}
	return parts + ")"
}

func aggNames(aggs []aggSpec) []string {
	names := make([]string, len(aggs))
	for i, a := range aggs {
		names[i] = a.name
	}
	return names
}

// aggregator folds one aggregate over a group's rows.
type aggregator interface {
	add(v value.Value) error
	result() (value.Value, error)
}

func newAggregator(call *expr.Call) (aggregator, error) {
	switch strings.ToUpper(call.Name) {
	case "COUNT":
		if call.Star {
			return &countStarAgg{}, nil
		}
		return &countAgg{}, nil
	case "SUM":
		return &sumAgg{}, nil
	case "AVG":
		return &avgAgg{}, nil
	case "MIN":
		return &minMaxAgg{min: true}, nil
	case "MAX":
		return &minMaxAgg{}, nil
	default:
		return nil, &dberr.TypeError{Op: call.Name, Types: []string{"not an aggregate"}}
	}
}

// countStarAgg counts rows.
type countStarAgg struct{ n int64 }

func (a *countStarAgg) add(value.Value) error { a.n++; return nil }

func (a *countStarAgg) result() (value.Value, error) { return value.NewInt(a.n), nil }

// countAgg counts non-Null evaluations.
type countAgg struct{ n int64 }

func (a *countAgg) add(v value.Value) error {
	if !v.IsNull() {
		a.n++
	}
	return nil
}

func (a *countAgg) result() (value.Value, error) { return value.NewInt(a.n), nil }

// sumAgg accumulates numbers in i64 until the first Float promotes it,
// and vectors/matrices element-wise against a lazily-adopted shape.
type sumAgg struct {
	seen    bool
	isFloat bool
	i       int64
	f       float64
	shape   []int
	acc     []float64
}

func (a *sumAgg) add(v value.Value) error {
	if v.IsNull() {
		return nil
	}
	switch {
	case v.IsTensor():
		t, _ := v.Tensor()
		if !a.seen {
			a.seen = true
			a.shape = t.Shape()
			a.acc = append([]float64(nil), t.Data()...)
			return nil
		}
		if a.acc == nil {
			return &dberr.TypeError{Op: "SUM", Types: []string{"number", v.Kind().String()}}
		}
		if !shapesMatch(a.shape, t.Shape()) {
			return dberr.Shapes(a.shape, t.Shape())
		}
		floats.Add(a.acc, t.Data())
		return nil
	case v.IsNumeric():
		if a.seen && a.acc != nil {
			return &dberr.TypeError{Op: "SUM", Types: []string{"tensor", v.Kind().String()}}
		}
		a.seen = true
		if v.Kind() == value.KindFloat && !a.isFloat {
			a.isFloat = true
			a.f += float64(a.i)
			a.i = 0
		}
		if a.isFloat {
			f, _ := v.AsFloat()
			a.f += f
		} else {
			i, _ := v.Int()
			a.i += i
		}
		return nil
	default:
		return &dberr.TypeError{Op: "SUM", Types: []string{v.Kind().String()}}
	}
}

func (a *sumAgg) result() (value.Value, error) {
	switch {
	case !a.seen:
		return value.Null(), nil
	case a.acc != nil:
		t, err := tensor.New(a.shape, a.acc)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromTensor(t), nil
	case a.isFloat:
		return value.NewFloat(a.f), nil
	default:
		return value.NewInt(a.i), nil
	}
}

// avgAgg maintains (sum, count); the final value promotes Int to Float
// and divides element-wise for tensors.
type avgAgg struct {
	sum   sumAgg
	count int64
}

func (a *avgAgg) add(v value.Value) error {
	if v.IsNull() {
		return nil
	}
	if err := a.sum.add(v); err != nil {
		return err
	}
	a.count++
	return nil
}

func (a *avgAgg) result() (value.Value, error) {
	if a.count == 0 {
		return value.Null(), nil
	}
	total, err := a.sum.result()
	if err != nil {
		return value.Value{}, err
	}
	if total.IsTensor() {
		t, _ := total.Tensor()
		return value.FromTensor(tensor.Scale(t, 1/float64(a.count))), nil
	}
	f, err := total.AsFloat()
	if err != nil {
		return value.Value{}, err
	}
	return value.NewFloat(f / float64(a.count)), nil
}

// minMaxAgg keeps the extreme value under the engine ordering, ignoring
// Null. All-Null input yields Null.
type minMaxAgg struct {
	min  bool
	seen bool
	best value.Value
}

func (a *minMaxAgg) add(v value.Value) error {
	if v.IsNull() {
		return nil
	}
	if !a.seen {
		a.seen = true
		a.best = v
		return nil
	}
	c, err := value.Compare(v, a.best)
	if err != nil {
		return err
	}
	if (a.min && c < 0) || (!a.min && c > 0) {
		a.best = v
	}
	return nil
}

func (a *minMaxAgg) result() (value.Value, error) {
	if !a.seen {
		return value.Null(), nil
	}
	return a.best, nil
}

func shapesMatch(a, b []int) bool {
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
