package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// ExecContext is the per-command execution scope: it carries the caller's
// deadline and is polled on every operator iteration. Transient state
// built during execution dies with it.
type ExecContext struct {
	ctx context.Context
}

// NewExecContext wraps a command context. A background context means an
// infinite deadline.
func NewExecContext(ctx context.Context) *ExecContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ExecContext{ctx: ctx}
}

// Check polls the deadline; expired execution aborts with Cancelled and
// discards any partial result.
func (e *ExecContext) Check() error {
	if err := e.ctx.Err(); err != nil {
		deadline, _ := e.ctx.Deadline()
		return &dberr.Cancelled{Deadline: deadline}
	}
	return nil
}

// Deadline exposes the residual deadline for storage adapter calls.
func (e *ExecContext) Deadline() (time.Time, bool) { return e.ctx.Deadline() }

// frame is one row moving through the operator tree: its values, output
// column names, and the environment downstream expressions evaluate in.
type frame struct {
	env  expr.Env
	cols []string
	vals []value.Value
}

// get resolves a column name through the frame environment, which expands
// lazy columns for dataset-backed frames.
func (f *frame) get(name string) (value.Value, error) {
	return expr.Eval(&expr.ColumnRef{Name: name}, f.env)
}

// operator is the uniform pull contract every physical node implements:
// open, produce frames until nil, close.
type operator interface {
	open(*ExecContext) error
	next(*ExecContext) (*frame, error)
	close()
	explain() string
	child() operator
}

// scanOp walks every dataset row in insertion order. needed carries the
// pruned column set for plan rendering.
type scanOp struct {
	ds      *dataset.Dataset
	ambient expr.Env
	needed  []string
	pos     int
}

func (s *scanOp) open(*ExecContext) error { s.pos = 0; return nil }

func (s *scanOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if s.pos >= s.ds.RowCount() {
		return nil, nil
	}
	id := s.pos
	s.pos++
	return &frame{
		env:  s.ds.RowEnv(id, s.ambient),
		cols: s.ds.Schema().Names(),
		vals: s.ds.Row(id),
	}, nil
}

func (s *scanOp) close()         {}
func (s *scanOp) child() operator { return nil }

func (s *scanOp) explain() string {
	if len(s.needed) == 0 {
		return fmt.Sprintf("Scan(%s)", s.ds.Name)
	}
	return fmt.Sprintf("Scan(%s cols=[%s])", s.ds.Name, strings.Join(s.needed, ", "))
}

// indexScanOp produces the rows a hash index reports for an equality key,
// in insertion order.
type indexScanOp struct {
	ds      *dataset.Dataset
	ambient expr.Env
	idx     *index.Hash
	key     value.Value
	ids     []int
	pos     int
}

func (s *indexScanOp) open(*ExecContext) error {
	ids, err := s.idx.Lookup(s.key)
	if err != nil {
		return err
	}
	s.ids = ids
	s.pos = 0
	return nil
}

func (s *indexScanOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.ids) {
		return nil, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return &frame{
		env:  s.ds.RowEnv(id, s.ambient),
		cols: s.ds.Schema().Names(),
		vals: s.ds.Row(id),
	}, nil
}

func (s *indexScanOp) close()         {}
func (s *indexScanOp) child() operator { return nil }

func (s *indexScanOp) explain() string {
	return fmt.Sprintf("IndexScan(%s %s = %s)", s.idx.Name(), s.idx.Columns()[0], s.key)
}

// vectorScanOp produces the top-K rows by similarity, through a vector
// index when one matches the metric or by a sequential metric scan
// otherwise. Ties keep insertion order; the score joins the output only
// when the projection asks for the similarity expression.
type vectorScanOp struct {
	ds         *dataset.Dataset
	ambient    expr.Env
	column     string
	ordinal    int
	query      *tensor.Tensor
	k          int
	metric     index.Metric
	idx        *index.Vector
	candidates []index.Candidate
	pos        int
}

func (s *vectorScanOp) open(e *ExecContext) error {
	s.pos = 0
	if s.idx != nil {
		cs, err := s.idx.KNN(s.query, s.k, s.metric)
		if err != nil {
			return err
		}
		s.candidates = cs
		return nil
	}
	var cs []index.Candidate
	for id := 0; id < s.ds.RowCount(); id++ {
		if err := e.Check(); err != nil {
			return err
		}
		cell := s.ds.Row(id)[s.ordinal]
		if cell.IsNull() {
			continue
		}
		vec, err := cell.Tensor()
		if err != nil {
			return err
		}
		score, err := index.Score(s.query, vec, s.metric)
		if err != nil {
			return err
		}
		cs = append(cs, index.Candidate{RowID: id, Score: score})
	}
	index.SortCandidates(cs, s.metric)
	if len(cs) > s.k {
		cs = cs[:s.k]
	}
	s.candidates = cs
	return nil
}

func (s *vectorScanOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.candidates) {
		return nil, nil
	}
	id := s.candidates[s.pos].RowID
	s.pos++
	return &frame{
		env:  s.ds.RowEnv(id, s.ambient),
		cols: s.ds.Schema().Names(),
		vals: s.ds.Row(id),
	}, nil
}

func (s *vectorScanOp) close()         {}
func (s *vectorScanOp) child() operator { return nil }

func (s *vectorScanOp) explain() string {
	source := "seq"
	if s.idx != nil {
		source = s.idx.Name()
	}
	return fmt.Sprintf("VectorScan(%s %s k=%d metric=%s)", source, s.column, s.k, s.metric)
}

// filterOp keeps frames whose predicate evaluates to true. Null predicate
// results exclude the row; non-boolean results are a type error.
type filterOp struct {
	pred expr.Expr
	in   operator
}

func (f *filterOp) open(e *ExecContext) error { return f.in.open(e) }

func (f *filterOp) next(e *ExecContext) (*frame, error) {
	for {
		if err := e.Check(); err != nil {
			return nil, err
		}
		fr, err := f.in.next(e)
		if err != nil || fr == nil {
			return nil, err
		}
		v, err := expr.Eval(f.pred, fr.env)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			continue
		}
		keep, err := v.Bool()
		if err != nil {
			return nil, &dberr.TypeError{Op: "WHERE", Types: []string{v.Kind().String()}}
		}
		if keep {
			return fr, nil
		}
	}
}

func (f *filterOp) close()          { f.in.close() }
func (f *filterOp) child() operator { return f.in }

func (f *filterOp) explain() string { return fmt.Sprintf("Filter(%s)", f.pred) }

// orderOp materializes its input and stable-sorts it on the key.
type orderOp struct {
	key    expr.Expr
	desc   bool
	in     operator
	frames []*frame
	pos    int
}

func (o *orderOp) open(e *ExecContext) error {
	if err := o.in.open(e); err != nil {
		return err
	}
	type keyed struct {
		fr *frame
		k  value.Value
	}
	var rows []keyed
	for {
		fr, err := o.in.next(e)
		if err != nil {
			return err
		}
		if fr == nil {
			break
		}
		k, err := expr.Eval(o.key, fr.env)
		if err != nil {
			return err
		}
		rows = append(rows, keyed{fr: fr, k: k})
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		c, err := value.Compare(rows[i].k, rows[j].k)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if o.desc {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return sortErr
	}
	o.frames = make([]*frame, len(rows))
	for i, r := range rows {
		o.frames[i] = r.fr
	}
	o.pos = 0
	return nil
}

func (o *orderOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if o.pos >= len(o.frames) {
		return nil, nil
	}
	fr := o.frames[o.pos]
	o.pos++
	return fr, nil
}

func (o *orderOp) close()          { o.frames = nil; o.in.close() }
func (o *orderOp) child() operator { return o.in }

func (o *orderOp) explain() string {
	dir := "asc"
	if o.desc {
		dir = "desc"
	}
	return fmt.Sprintf("Order(%s %s)", o.key, dir)
}

// limitOp passes the first n frames through.
type limitOp struct {
	n     int
	in    operator
	count int
}

func (l *limitOp) open(e *ExecContext) error { l.count = 0; return l.in.open(e) }

func (l *limitOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if l.count >= l.n {
		return nil, nil
	}
	fr, err := l.in.next(e)
	if err != nil || fr == nil {
		return nil, err
	}
	l.count++
	return fr, nil
}

func (l *limitOp) close()          { l.in.close() }
func (l *limitOp) child() operator { return l.in }

func (l *limitOp) explain() string { return fmt.Sprintf("Limit(%d)", l.n) }

// projectOp evaluates the projection expressions against each frame.
type projectOp struct {
	items []projItem
	in    operator
}

type projItem struct {
	e    expr.Expr
	name string
}

func (p *projectOp) open(e *ExecContext) error { return p.in.open(e) }

func (p *projectOp) next(e *ExecContext) (*frame, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	fr, err := p.in.next(e)
	if err != nil || fr == nil {
		return nil, err
	}
	out := &frame{cols: p.columns(), vals: make([]value.Value, len(p.items))}
	env := expr.MapEnv{}
	for i, item := range p.items {
		v, err := expr.Eval(item.e, fr.env)
		if err != nil {
			return nil, err
		}
		out.vals[i] = v
		env[item.name] = v
	}
	out.env = env
	return out, nil
}

func (p *projectOp) close()          { p.in.close() }
func (p *projectOp) child() operator { return p.in }

func (p *projectOp) columns() []string {
	cols := make([]string, len(p.items))
	for i, item := range p.items {
		cols[i] = item.name
	}
	return cols
}

func (p *projectOp) explain() string {
	return fmt.Sprintf("Project(%s)", strings.Join(p.columns(), ", "))
}
