package query

import (
	"strings"

	"go.uber.org/zap"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/parser"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// Result is a completed query: named columns and materialized rows.
type Result struct {
	Columns []string
	Rows    [][]value.Value
}

// Plan is a ready-to-run physical operator tree.
type Plan struct {
	root    operator
	Columns []string
}

// Planner lowers SELECT ASTs into physical plans: predicate pushdown into
// index scans, projection pruning annotations, and index selection.
type Planner struct {
	Log *zap.Logger
}

// Run pulls the whole plan, honoring the execution context's deadline.
func (p *Plan) Run(e *ExecContext) (*Result, error) {
	if err := p.root.open(e); err != nil {
		p.root.close()
		return nil, err
	}
	defer p.root.close()
	res := &Result{Columns: p.Columns}
	for {
		fr, err := p.root.next(e)
		if err != nil {
			return nil, err
		}
		if fr == nil {
			return res, nil
		}
		res.Rows = append(res.Rows, fr.vals)
	}
}

// Explain renders the operator tree with its chosen access paths.
func (p *Plan) Explain() string {
	var sb strings.Builder
	depth := 0
	for op := p.root; op != nil; op = op.child() {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(op.explain())
		sb.WriteString("\n")
		depth++
	}
	return strings.TrimRight(sb.String(), "\n")
}

// conjunct classification for pushdown.
type eqPredicate struct {
	column string
	key    value.Value
}

type simPredicate struct {
	column string
	query  *tensor.Tensor
}

// PlanSelect builds the physical plan for a SELECT over one dataset.
func (p *Planner) PlanSelect(sel *parser.Select, ds *dataset.Dataset, ambient expr.Env) (*Plan, error) {
	items, err := expandStar(sel, ds)
	if err != nil {
		return nil, err
	}
	needed := neededColumns(sel, items, ds)

	// Aggregate rewrite: aggregate calls in the projection and HAVING are
	// replaced by references to their result names; the group operator
	// computes them.
	var aggs []aggSpec
	for i := range items {
		items[i].e = rewriteAggregates(items[i].e, &aggs)
	}
	having := sel.Having
	if having != nil {
		having = rewriteAggregates(having, &aggs)
	}
	var orderKey expr.Expr
	var orderDesc bool
	if sel.Order != nil {
		orderKey = sel.Order.Expr
		orderDesc = sel.Order.Desc
		if len(sel.GroupBy) > 0 || len(aggs) > 0 {
			orderKey = rewriteAggregates(orderKey, &aggs)
		}
	}
	grouped := len(sel.GroupBy) > 0 || len(aggs) > 0

	conjuncts := splitConjuncts(sel.Where)
	var eq *eqPredicate
	var sim *simPredicate
	simAt, eqAt := -1, -1
	for i, c := range conjuncts {
		if e := matchEquality(c); e != nil && eq == nil && ds.HashIndexOn(e.column) != nil {
			eq, eqAt = e, i
		}
		if s := matchSimilarity(c, ambient); s != nil && sim == nil {
			sim, simAt = s, i
		}
	}

	// Index selection: a vector predicate wins only under LIMIT; hash
	// equality beats a full scan; everything else scans.
	var root operator
	switch {
	case sim != nil && sel.Limit != nil:
		ord, ok := ds.Schema().Index(sim.column)
		if !ok {
			return nil, &dberr.NotFound{Kind: "column", Name: sim.column}
		}
		vs := &vectorScanOp{
			ds: ds, ambient: ambient, column: sim.column, ordinal: ord,
			query: sim.query, k: *sel.Limit, metric: index.MetricCosine,
		}
		if idx := ds.VectorIndexOn(sim.column); idx != nil {
			vs.idx = idx
			vs.metric = idx.Metric()
		}
		root = vs
		conjuncts = removeAt(conjuncts, simAt)
	case sim != nil:
		return nil, &dberr.Unsupported{Op: "similarity predicate without LIMIT"}
	case eq != nil:
		root = &indexScanOp{ds: ds, ambient: ambient, idx: ds.HashIndexOn(eq.column), key: eq.key}
		conjuncts = removeAt(conjuncts, eqAt)
	default:
		root = &scanOp{ds: ds, ambient: ambient, needed: needed}
	}

	if rest := joinConjuncts(conjuncts); rest != nil {
		root = &filterOp{pred: rest, in: root}
	}
	if grouped {
		root = &groupOp{keys: sel.GroupBy, aggs: aggs, having: having, in: root}
	}
	if orderKey != nil {
		root = &orderOp{key: orderKey, desc: orderDesc, in: root}
	}
	if sel.Limit != nil {
		root = &limitOp{n: *sel.Limit, in: root}
	}
	proj := make([]projItem, len(items))
	copy(proj, items)
	root = &projectOp{items: proj, in: root}

	plan := &Plan{root: root, Columns: make([]string, len(items))}
	for i, it := range items {
		plan.Columns[i] = it.name
	}
	if p.Log != nil {
		p.Log.Debug("planned query",
			zap.String("dataset", ds.Name),
			zap.String("plan", plan.Explain()),
		)
	}
	return plan, nil
}

// LowerSearch rewrites the SEARCH shorthand into its SELECT equivalent:
// a similarity predicate under LIMIT k.
func LowerSearch(s *parser.Search) *parser.Select {
	limit := s.K
	return &parser.Select{
		Items: []parser.SelectItem{{Star: true}},
		From:  s.Dataset,
		Where: &expr.Binary{Op: expr.OpSim, L: &expr.ColumnRef{Name: s.Column}, R: s.Query},
		Limit: &limit,
	}
}

// expandStar resolves projection items, replacing * with every schema
// column in canonical order.
func expandStar(sel *parser.Select, ds *dataset.Dataset) ([]projItem, error) {
	var items []projItem
	for _, it := range sel.Items {
		if it.Star {
			for _, name := range ds.Schema().Names() {
				items = append(items, projItem{e: &expr.ColumnRef{Name: name}, name: name})
			}
			continue
		}
		name := it.Alias
		if name == "" {
			name = it.Expr.String()
		}
		items = append(items, projItem{e: it.Expr, name: name})
	}
	if len(items) == 0 {
		return nil, &dberr.ParseError{Msg: "empty projection"}
	}
	return items, nil
}

// rewriteAggregates replaces aggregate calls with references to their
// result names and registers them, deduplicated by spelling.
func rewriteAggregates(e expr.Expr, aggs *[]aggSpec) expr.Expr {
	switch n := e.(type) {
	case *expr.Call:
		if expr.AggregateNames[strings.ToUpper(n.Name)] && (n.Star || len(n.Args) == 1) {
			name := n.String()
			for _, a := range *aggs {
				if a.name == name {
					return &expr.ColumnRef{Name: name}
				}
			}
			*aggs = append(*aggs, aggSpec{name: name, call: n})
			return &expr.ColumnRef{Name: name}
		}
		args := make([]expr.Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = rewriteAggregates(a, aggs)
		}
		return &expr.Call{Name: n.Name, Args: args, Star: n.Star}
	case *expr.Binary:
		return &expr.Binary{Op: n.Op, L: rewriteAggregates(n.L, aggs), R: rewriteAggregates(n.R, aggs)}
	case *expr.Unary:
		return &expr.Unary{Op: n.Op, X: rewriteAggregates(n.X, aggs)}
	default:
		return e
	}
}

// splitConjuncts flattens a predicate over top-level ANDs.
func splitConjuncts(e expr.Expr) []expr.Expr {
	if e == nil {
		return nil
	}
	if b, ok := e.(*expr.Binary); ok && b.Op == expr.OpAnd {
		return append(splitConjuncts(b.L), splitConjuncts(b.R)...)
	}
	return []expr.Expr{e}
}

func joinConjuncts(cs []expr.Expr) expr.Expr {
	var out expr.Expr
	for _, c := range cs {
		if out == nil {
			out = c
		} else {
			out = &expr.Binary{Op: expr.OpAnd, L: out, R: c}
		}
	}
	return out
}

func removeAt(cs []expr.Expr, i int) []expr.Expr {
	out := make([]expr.Expr, 0, len(cs)-1)
	out = append(out, cs[:i]...)
	return append(out, cs[i+1:]...)
}

// matchEquality recognizes column = literal conjuncts (either side).
func matchEquality(e expr.Expr) *eqPredicate {
	b, ok := e.(*expr.Binary)
	if !ok || b.Op != expr.OpEq {
		return nil
	}
	if col, ok := b.L.(*expr.ColumnRef); ok {
		if lit, ok := b.R.(*expr.Literal); ok {
			return &eqPredicate{column: col.Name, key: lit.Value}
		}
	}
	if col, ok := b.R.(*expr.ColumnRef); ok {
		if lit, ok := b.L.(*expr.Literal); ok {
			return &eqPredicate{column: col.Name, key: lit.Value}
		}
	}
	return nil
}

// matchSimilarity recognizes column ~= query conjuncts. The query side
// is evaluated against the ambient scope at plan time and must yield a
// vector; anything else is not pushable and stays in the filter.
func matchSimilarity(e expr.Expr, ambient expr.Env) *simPredicate {
	b, ok := e.(*expr.Binary)
	if !ok || b.Op != expr.OpSim {
		return nil
	}
	col, ok := b.L.(*expr.ColumnRef)
	if !ok {
		return nil
	}
	env := ambient
	if env == nil {
		env = expr.MapEnv{}
	}
	qv, err := expr.Eval(b.R, env)
	if err != nil {
		return nil
	}
	qt, err := qv.Tensor()
	if err != nil || qt.Rank() != 1 {
		return nil
	}
	return &simPredicate{column: col.Name, query: qt}
}

// neededColumns computes the minimal column set the plan reads, used to
// annotate the scan.
func neededColumns(sel *parser.Select, items []projItem, ds *dataset.Dataset) []string {
	seen := map[string]bool{}
	var out []string
	note := func(names []string) {
		for _, n := range names {
			if _, ok := ds.Schema().Index(n); ok && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, it := range items {
		note(expr.Columns(it.e))
	}
	if sel.Where != nil {
		note(expr.Columns(sel.Where))
	}
	note(sel.GroupBy)
	if sel.Having != nil {
		note(expr.Columns(sel.Having))
	}
	if sel.Order != nil {
		note(expr.Columns(sel.Order.Expr))
	}
	return out
}
