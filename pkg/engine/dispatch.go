package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/parser"
	"github.com/linaldb/linal/pkg/query"
	"github.com/linaldb/linal/pkg/value"
)

// Session binds a connection to its current database. Sessions are not
// safe for concurrent use; each connection owns one.
type Session struct {
	engine      *Engine
	current     string
	lastDataset string
}

// Current returns the session's current database name.
func (s *Session) Current() string { return s.current }

// ExecuteScript parses and runs a script statement by statement. Each
// statement is its own unit: a failure stops execution and is reported
// as the final output, but earlier statements keep their effects.
func (s *Session) ExecuteScript(ctx context.Context, source string) []*Output {
	cmds, err := parser.Parse(source)
	if err != nil {
		return []*Output{FromError(err)}
	}
	var outs []*Output
	for _, cmd := range cmds {
		out := s.Execute(ctx, cmd)
		outs = append(outs, out)
		if out.Kind == KindError {
			break
		}
	}
	return outs
}

// Execute dispatches one parsed command. Errors abort the command and
// surface verbatim in the output envelope.
func (s *Session) Execute(ctx context.Context, cmd parser.Command) *Output {
	out, err := s.dispatch(ctx, cmd)
	if err != nil {
		s.engine.logger.Debug("command failed",
			zap.String("database", s.current),
			zap.String("code", string(dberr.CodeOf(err))),
			zap.Error(err),
		)
		return FromError(err)
	}
	return out
}

func (s *Session) dispatch(ctx context.Context, cmd parser.Command) (*Output, error) {
	// Engine-level lifecycle commands run outside any instance lock.
	switch c := cmd.(type) {
	case *parser.CreateDatabase:
		if err := s.engine.createDatabase(ctx, c.Name); err != nil {
			return nil, err
		}
		return OK(fmt.Sprintf("database %q created", c.Name)), nil
	case *parser.DropDatabase:
		if err := s.engine.dropDatabase(c.Name); err != nil {
			return nil, err
		}
		if s.current == c.Name {
			s.current = s.engine.DefaultDatabase()
		}
		return OK(fmt.Sprintf("database %q dropped", c.Name)), nil
	case *parser.UseDatabase:
		if _, err := s.engine.instance(c.Name); err != nil {
			return nil, err
		}
		s.current = c.Name
		return OK(fmt.Sprintf("using database %q", c.Name)), nil
	case *parser.Show:
		if c.What == parser.ShowDatabases {
			return FromList("database", s.engine.Databases(), ""), nil
		}
	}

	inst, err := s.engine.instance(s.current)
	if err != nil {
		return nil, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if err := s.engine.hydrate(ctx, inst); err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case *parser.DefineTensor:
		return s.handleDefine(inst, c)
	case *parser.Let:
		return s.handleLet(inst, c)
	case *parser.CreateDataset:
		return s.handleCreateDataset(inst, c)
	case *parser.Insert:
		return s.handleInsert(inst, c)
	case *parser.AddColumn:
		return s.handleAddColumn(inst, c)
	case *parser.Materialize:
		return s.handleMaterialize(inst, c)
	case *parser.Select:
		return s.handleSelect(ctx, inst, c)
	case *parser.Search:
		return s.handleSelect(ctx, inst, query.LowerSearch(c))
	case *parser.Explain:
		return s.handleExplain(inst, c)
	case *parser.CreateIndex:
		return s.handleCreateIndex(inst, c)
	case *parser.ShowIndexes:
		return s.handleShowIndexes(inst, c)
	case *parser.Show:
		return s.handleShow(inst, c)
	case *parser.List:
		return s.handleList(inst, c)
	case *parser.Save:
		return s.handleSave(ctx, inst, c)
	case *parser.Load:
		return s.handleLoad(ctx, inst, c)
	case *parser.DropDataset:
		if err := inst.store.Drop(c.Name); err != nil {
			return nil, err
		}
		return OK(fmt.Sprintf("dataset %q dropped", c.Name)), nil
	case *parser.DropTensor:
		if _, ok := inst.bindings[c.Name]; !ok {
			return nil, &dberr.NotFound{Kind: "tensor", Name: c.Name}
		}
		delete(inst.bindings, c.Name)
		return OK(fmt.Sprintf("tensor %q dropped", c.Name)), nil
	case *parser.SetMetadata:
		return s.handleSetMetadata(inst, c)
	default:
		return nil, &dberr.Unsupported{Op: fmt.Sprintf("command %T", cmd)}
	}
}

func (s *Session) handleDefine(inst *Instance, c *parser.DefineTensor) (*Output, error) {
	if _, exists := inst.bindings[c.Name]; exists {
		return nil, &dberr.AlreadyExists{Kind: "tensor", Name: c.Name}
	}
	v, err := expr.Eval(c.Expr, inst.Env())
	if err != nil {
		return nil, err
	}
	t, err := v.Tensor()
	if err != nil {
		return nil, &dberr.TypeError{Op: "DEFINE", Types: []string{v.Kind().String()}}
	}
	switch c.Kind {
	case value.KindVector:
		if t.Rank() != 1 {
			return nil, dberr.Shapes([]int{t.Len()}, t.Shape())
		}
	case value.KindMatrix:
		if t.Rank() != 2 {
			return nil, &dberr.ShapeMismatch{Expected: "rank-2 tensor", Actual: fmt.Sprintf("rank-%d", t.Rank())}
		}
	}
	inst.bindings[c.Name] = v
	return FromValue(v, fmt.Sprintf("%s defined", c.Name)), nil
}

func (s *Session) handleLet(inst *Instance, c *parser.Let) (*Output, error) {
	v, err := expr.Eval(c.Expr, inst.Env())
	if err != nil {
		return nil, err
	}
	inst.bindings[c.Name] = v
	return FromValue(v, fmt.Sprintf("%s bound", c.Name)), nil
}

func (s *Session) handleCreateDataset(inst *Instance, c *parser.CreateDataset) (*Output, error) {
	schema, err := value.NewSchema(c.Fields)
	if err != nil {
		return nil, err
	}
	if _, err := inst.store.Create(c.Name, schema); err != nil {
		return nil, err
	}
	s.lastDataset = c.Name
	return OK(fmt.Sprintf("dataset %q created", c.Name)), nil
}

func (s *Session) handleInsert(inst *Instance, c *parser.Insert) (*Output, error) {
	ds, err := inst.store.Get(c.Dataset)
	if err != nil {
		return nil, err
	}
	row := make([]value.Value, len(c.Values))
	for i, e := range c.Values {
		v, err := expr.Eval(e, inst.Env())
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	if err := ds.InsertRow(row); err != nil {
		return nil, err
	}
	s.lastDataset = c.Dataset
	return OK("1 row inserted"), nil
}

// targetDataset resolves an optional dataset name against the session's
// most recently used dataset.
func (s *Session) targetDataset(inst *Instance, name string) (*dataset.Dataset, error) {
	if name == "" {
		name = s.lastDataset
	}
	if name == "" {
		return nil, &dberr.NotFound{Kind: "dataset", Name: "(no current dataset)"}
	}
	return inst.store.Get(name)
}

func (s *Session) handleAddColumn(inst *Instance, c *parser.AddColumn) (*Output, error) {
	ds, err := s.targetDataset(inst, c.Dataset)
	if err != nil {
		return nil, err
	}
	field := value.Field{Name: c.Column, Type: inferColumnType(ds, c.Expr, inst.Env()), Nullable: true}
	cc := dataset.ComputedColumn{Column: c.Column, Source: c.Source, Expr: c.Expr, Lazy: c.Lazy}
	if err := ds.AddComputedColumn(field, cc, inst.Env()); err != nil {
		return nil, err
	}
	mode := "materialized"
	if c.Lazy {
		mode = "lazy"
	}
	s.lastDataset = ds.Name
	return OK(fmt.Sprintf("column %q added (%s)", c.Column, mode)), nil
}

// inferColumnType derives a computed column's declared type from its
// expression evaluated on the first row; an empty dataset defaults to
// Float.
func inferColumnType(ds *dataset.Dataset, e expr.Expr, ambient expr.Env) value.Type {
	if ds.RowCount() == 0 {
		return value.Type{Kind: value.KindFloat}
	}
	v, err := expr.Eval(e, ds.RowEnv(0, ambient))
	if err != nil || v.IsNull() {
		return value.Type{Kind: value.KindFloat}
	}
	return v.Type()
}

func (s *Session) handleMaterialize(inst *Instance, c *parser.Materialize) (*Output, error) {
	ds, err := s.targetDataset(inst, c.Dataset)
	if err != nil {
		return nil, err
	}
	if err := ds.Materialize(inst.Env()); err != nil {
		return nil, err
	}
	s.lastDataset = ds.Name
	return OK(fmt.Sprintf("dataset %q materialized", ds.Name)), nil
}

func (s *Session) handleSelect(ctx context.Context, inst *Instance, c *parser.Select) (*Output, error) {
	ds, err := inst.store.Get(c.From)
	if err != nil {
		return nil, err
	}
	planner := &query.Planner{Log: s.engine.logger}
	plan, err := planner.PlanSelect(c, ds, inst.Env())
	if err != nil {
		return nil, err
	}
	res, err := plan.Run(query.NewExecContext(ctx))
	if err != nil {
		return nil, err
	}
	s.lastDataset = c.From
	return FromTable(&Table{Columns: res.Columns, Rows: res.Rows},
		fmt.Sprintf("%d rows", len(res.Rows))), nil
}

func (s *Session) handleExplain(inst *Instance, c *parser.Explain) (*Output, error) {
	sel, ok := c.Stmt.(*parser.Select)
	if !ok {
		if search, isSearch := c.Stmt.(*parser.Search); isSearch {
			sel = query.LowerSearch(search)
		} else {
			return nil, &dberr.Unsupported{Op: "EXPLAIN target"}
		}
	}
	ds, err := inst.store.Get(sel.From)
	if err != nil {
		return nil, err
	}
	planner := &query.Planner{Log: s.engine.logger}
	plan, err := planner.PlanSelect(sel, ds, inst.Env())
	if err != nil {
		return nil, err
	}
	return FromPlan(plan.Explain()), nil
}

func (s *Session) handleCreateIndex(inst *Instance, c *parser.CreateIndex) (*Output, error) {
	ds, err := inst.store.Get(c.Dataset)
	if err != nil {
		return nil, err
	}
	def := index.Definition{Name: c.Name, Kind: index.KindHash, Column: c.Column}
	if c.Vector {
		def.Kind = index.KindVector
		def.Metric = c.Metric
	}
	if _, err := ds.AttachIndex(def); err != nil {
		return nil, err
	}
	s.lastDataset = c.Dataset
	return OK(fmt.Sprintf("index %q created on %s(%s)", c.Name, c.Dataset, c.Column)), nil
}

func (s *Session) handleShowIndexes(inst *Instance, c *parser.ShowIndexes) (*Output, error) {
	names := inst.store.Names()
	if c.Dataset != "" {
		if _, err := inst.store.Get(c.Dataset); err != nil {
			return nil, err
		}
		names = []string{c.Dataset}
	}
	t := &Table{Columns: []string{"dataset", "index", "kind", "column", "metric"}}
	for _, dsName := range names {
		ds, err := inst.store.Get(dsName)
		if err != nil {
			return nil, err
		}
		for _, ix := range ds.Indexes() {
			metric := ""
			if v, ok := ix.(*index.Vector); ok {
				metric = string(v.Metric())
			}
			t.Rows = append(t.Rows, []value.Value{
				value.NewString(dsName),
				value.NewString(ix.Name()),
				value.NewString(string(ix.Kind())),
				value.NewString(ix.Columns()[0]),
				value.NewString(metric),
			})
		}
	}
	return &Output{Kind: KindList, Table: t}, nil
}

func (s *Session) handleShow(inst *Instance, c *parser.Show) (*Output, error) {
	switch c.What {
	case parser.ShowSchema:
		ds, err := inst.store.Get(c.Name)
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"column", "type", "nullable"}}
		for _, f := range ds.Schema().Fields() {
			t.Rows = append(t.Rows, []value.Value{
				value.NewString(f.Name),
				value.NewString(f.Type.String()),
				value.NewBool(f.Nullable),
			})
		}
		return &Output{Kind: KindList, Table: t}, nil

	case parser.ShowShape:
		v, ok := inst.bindings[c.Name]
		if !ok {
			return nil, &dberr.NotFound{Kind: "tensor", Name: c.Name}
		}
		t, err := v.Tensor()
		if err != nil {
			return nil, &dberr.TypeError{Op: "SHOW SHAPE", Types: []string{v.Kind().String()}}
		}
		return OK(fmt.Sprintf("shape %v", t.Shape())), nil

	case parser.ShowAll:
		t := &Table{Columns: []string{"name", "kind"}}
		for _, n := range inst.store.Names() {
			t.Rows = append(t.Rows, []value.Value{value.NewString(n), value.NewString("dataset")})
		}
		for _, n := range sortedBindingNames(inst) {
			t.Rows = append(t.Rows, []value.Value{value.NewString(n), value.NewString("tensor")})
		}
		return &Output{Kind: KindList, Table: t}, nil

	default: // ShowObject
		if ds, err := inst.store.Get(c.Name); err == nil {
			t := &Table{Columns: ds.Schema().Names()}
			for i := 0; i < ds.RowCount(); i++ {
				t.Rows = append(t.Rows, ds.Row(i))
			}
			return FromTable(t, fmt.Sprintf("%d rows", ds.RowCount())), nil
		}
		v, ok := inst.bindings[c.Name]
		if !ok {
			return nil, &dberr.NotFound{Kind: "object", Name: c.Name}
		}
		return FromValue(v, ""), nil
	}
}

func (s *Session) handleList(inst *Instance, c *parser.List) (*Output, error) {
	if c.Datasets {
		return FromList("dataset", inst.store.Names(), ""), nil
	}
	return FromList("tensor", sortedBindingNames(inst), ""), nil
}

func (s *Session) handleSave(ctx context.Context, inst *Instance, c *parser.Save) (*Output, error) {
	if c.Tensor {
		v, ok := inst.bindings[c.Name]
		if !ok {
			return nil, &dberr.NotFound{Kind: "tensor", Name: c.Name}
		}
		t, err := v.Tensor()
		if err != nil {
			return nil, &dberr.TypeError{Op: "SAVE TENSOR", Types: []string{v.Kind().String()}}
		}
		if err := s.engine.adapter.SaveTensor(ctx, inst.name, c.Name, t); err != nil {
			return nil, err
		}
		return OK(fmt.Sprintf("tensor %q saved", c.Name)), nil
	}
	ds, err := inst.store.Get(c.Name)
	if err != nil {
		return nil, err
	}
	if err := s.engine.adapter.SaveDataset(ctx, inst.name, ds.Snapshot()); err != nil {
		return nil, err
	}
	return OK(fmt.Sprintf("dataset %q saved", c.Name)), nil
}

func (s *Session) handleLoad(ctx context.Context, inst *Instance, c *parser.Load) (*Output, error) {
	if c.Tensor {
		t, err := s.engine.adapter.LoadTensor(ctx, inst.name, c.Name)
		if err != nil {
			return nil, err
		}
		inst.bindings[c.Name] = value.FromTensor(t)
		return OK(fmt.Sprintf("tensor %q loaded", c.Name)), nil
	}
	snap, err := s.engine.adapter.LoadDataset(ctx, inst.name, c.Name)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Restore(snap, parser.ParseExpression)
	if err != nil {
		return nil, err
	}
	inst.store.Put(ds)
	s.lastDataset = c.Name
	return OK(fmt.Sprintf("dataset %q loaded (%d rows)", c.Name, ds.RowCount())), nil
}

func (s *Session) handleSetMetadata(inst *Instance, c *parser.SetMetadata) (*Output, error) {
	ds, err := inst.store.Get(c.Dataset)
	if err != nil {
		return nil, err
	}
	v, err := expr.Eval(c.Value, inst.Env())
	if err != nil {
		return nil, err
	}
	ds.SetMetadata(c.Key, metadataValue(v))
	return OK(fmt.Sprintf("metadata %q set on %q", c.Key, c.Dataset)), nil
}

// metadataValue lowers a value into the untyped extra map.
func metadataValue(v value.Value) any {
	switch v.Kind() {
	case value.KindInt:
		i, _ := v.Int()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindBool:
		b, _ := v.Bool()
		return b
	case value.KindString:
		s, _ := v.Str()
		return s
	default:
		return v.String()
	}
}

func sortedBindingNames(inst *Instance) []string {
	names := make([]string, 0, len(inst.bindings))
	for n := range inst.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
