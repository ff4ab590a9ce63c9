package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/parser"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

func parseSelect(t *testing.T, src string) *parser.Select {
	t.Helper()
	cmd, err := parser.ParseOne(src)
	require.NoError(t, err)
	sel, ok := cmd.(*parser.Select)
	require.True(t, ok, "expected SELECT, got %T", cmd)
	return sel
}

func run(t *testing.T, sel *parser.Select, ds *dataset.Dataset) *Result {
	t.Helper()
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	res, err := plan.Run(NewExecContext(context.Background()))
	require.NoError(t, err)
	return res
}

func newUsers(t *testing.T) *dataset.Dataset {
	t.Helper()
	schema, err := value.NewSchema([]value.Field{
		{Name: "id", Type: value.Type{Kind: value.KindInt}},
		{Name: "age", Type: value.Type{Kind: value.KindInt}},
	})
	require.NoError(t, err)
	ds := dataset.New("u", schema)
	for _, pair := range [][2]int64{{1, 20}, {2, 22}, {3, 24}, {4, 22}, {5, 30}} {
		require.NoError(t, ds.InsertRow([]value.Value{value.NewInt(pair[0]), value.NewInt(pair[1])}))
	}
	return ds
}

func ids(res *Result, col int) []int64 {
	var out []int64
	for _, row := range res.Rows {
		i, _ := row[col].Int()
		out = append(out, i)
	}
	return out
}

func TestHashIndexPushdown(t *testing.T) {
	ds := newUsers(t)
	_, err := ds.AttachIndex(index.Definition{Name: "ix", Kind: index.KindHash, Column: "age"})
	require.NoError(t, err)

	sel := parseSelect(t, "SELECT id FROM u WHERE age = 22;")
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	require.Contains(t, plan.Explain(), "IndexScan(ix")

	res, err := plan.Run(NewExecContext(context.Background()))
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, res.Columns)
	require.Equal(t, []int64{2, 4}, ids(res, 0))
}

func TestIndexScanAgreesWithFullScan(t *testing.T) {
	indexed := newUsers(t)
	_, err := indexed.AttachIndex(index.Definition{Name: "ix", Kind: index.KindHash, Column: "age"})
	require.NoError(t, err)
	plain := newUsers(t)

	sel := parseSelect(t, "SELECT id FROM u WHERE age = 22;")
	withIndex := run(t, sel, indexed)
	withScan := run(t, sel, plain)
	require.Equal(t, withScan.Rows, withIndex.Rows)

	scanPlan, err := (&Planner{}).PlanSelect(sel, plain, nil)
	require.NoError(t, err)
	require.Contains(t, scanPlan.Explain(), "Scan(u")
	require.Contains(t, scanPlan.Explain(), "Filter(")
}

func newEmbeddings(t *testing.T) *dataset.Dataset {
	t.Helper()
	schema, err := value.NewSchema([]value.Field{
		{Name: "id", Type: value.Type{Kind: value.KindInt}},
		{Name: "emb", Type: value.Type{Kind: value.KindVector, Dims: []int{3}}},
	})
	require.NoError(t, err)
	ds := dataset.New("p", schema)
	rows := []struct {
		id  int64
		vec []float64
	}{
		{1, []float64{1, 0, 0}},
		{2, []float64{0, 1, 0}},
		{3, []float64{0.9, 0.1, 0}},
	}
	for _, r := range rows {
		require.NoError(t, ds.InsertRow([]value.Value{
			value.NewInt(r.id), value.FromTensor(tensor.FromVector(r.vec)),
		}))
	}
	return ds
}

func TestVectorKNNThroughIndex(t *testing.T) {
	ds := newEmbeddings(t)
	_, err := ds.AttachIndex(index.Definition{Name: "vx", Kind: index.KindVector, Column: "emb", Metric: index.MetricCosine})
	require.NoError(t, err)

	cmd, err := parser.ParseOne("SEARCH p WHERE emb ~= [1, 0, 0] LIMIT 2;")
	require.NoError(t, err)
	sel := LowerSearch(cmd.(*parser.Search))

	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	require.Contains(t, plan.Explain(), "VectorScan(vx")

	res, err := plan.Run(NewExecContext(context.Background()))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, ids(res, 0))
}

func TestVectorKNNWithoutIndexFallsBackToSequentialScan(t *testing.T) {
	ds := newEmbeddings(t)
	sel := parseSelect(t, "SELECT id FROM p WHERE emb ~= [1, 0, 0] LIMIT 2;")
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	require.Contains(t, plan.Explain(), "VectorScan(seq")

	res, err := plan.Run(NewExecContext(context.Background()))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, ids(res, 0))
}

func TestSimilarityWithoutLimitIsRejected(t *testing.T) {
	ds := newEmbeddings(t)
	sel := parseSelect(t, "SELECT id FROM p WHERE emb ~= [1, 0, 0];")
	_, err := (&Planner{}).PlanSelect(sel, ds, nil)
	var unsup *dberr.Unsupported
	require.ErrorAs(t, err, &unsup)
}

func TestMatrixSumGroupBy(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "region", Type: value.Type{Kind: value.KindString}},
		{Name: "f", Type: value.Type{Kind: value.KindMatrix, Dims: []int{2, 2}}},
	})
	require.NoError(t, err)
	ds := dataset.New("a", schema)
	mat := func(vals ...float64) value.Value {
		m, err := tensor.New([]int{2, 2}, vals)
		require.NoError(t, err)
		return value.FromTensor(m)
	}
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("N"), mat(1, 2, 3, 4)}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("N"), mat(1, 1, 1, 1)}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("S"), mat(2, 2, 2, 2)}))

	res := run(t, parseSelect(t, "SELECT region, SUM(f) FROM a GROUP BY region;"), ds)
	require.Equal(t, []string{"region", "SUM(f)"}, res.Columns)
	require.Len(t, res.Rows, 2)

	byRegion := map[string]value.Value{}
	for _, row := range res.Rows {
		name, _ := row[0].Str()
		byRegion[name] = row[1]
	}
	require.True(t, value.Equal(byRegion["N"], mat(2, 3, 4, 5)), "N sum = %s", byRegion["N"])
	require.True(t, value.Equal(byRegion["S"], mat(2, 2, 2, 2)), "S sum = %s", byRegion["S"])
}

func TestAggregationLinearity(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "a", Type: value.Type{Kind: value.KindVector, Dims: []int{2}}},
		{Name: "b", Type: value.Type{Kind: value.KindVector, Dims: []int{2}}},
	})
	require.NoError(t, err)
	ds := dataset.New("lin", schema)
	vec := func(x, y float64) value.Value { return value.FromTensor(tensor.FromVector([]float64{x, y})) }
	require.NoError(t, ds.InsertRow([]value.Value{vec(1, 2), vec(10, 20)}))
	require.NoError(t, ds.InsertRow([]value.Value{vec(3, 4), vec(30, 40)}))

	res := run(t, parseSelect(t, "SELECT SUM(a), SUM(b), SUM(a + b) FROM lin;"), ds)
	require.Len(t, res.Rows, 1)
	sa, _ := res.Rows[0][0].Tensor()
	sb, _ := res.Rows[0][1].Tensor()
	sab, _ := res.Rows[0][2].Tensor()
	sum, err := tensor.Add(sa, sb)
	require.NoError(t, err)
	require.True(t, sum.Equal(sab), "SUM(a)+SUM(b) = %v, SUM(a+b) = %v", sum, sab)
}

func TestGroupByHaving(t *testing.T) {
	ds := newUsers(t)
	res := run(t, parseSelect(t, "SELECT age, COUNT(*) FROM u GROUP BY age HAVING COUNT(*) > 1;"), ds)
	require.Len(t, res.Rows, 1)
	age, _ := res.Rows[0][0].Int()
	n, _ := res.Rows[0][1].Int()
	require.EqualValues(t, 22, age)
	require.EqualValues(t, 2, n)
}

func TestAggregatesOverNulls(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "g", Type: value.Type{Kind: value.KindString}},
		{Name: "n", Type: value.Type{Kind: value.KindInt}, Nullable: true},
	})
	require.NoError(t, err)
	ds := dataset.New("nulls", schema)
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("a"), value.NewInt(3)}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("a"), value.Null()}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewString("b"), value.Null()}))

	res := run(t, parseSelect(t, "SELECT g, COUNT(n), SUM(n), MIN(n), MAX(n), AVG(n) FROM nulls GROUP BY g;"), ds)
	require.Len(t, res.Rows, 2)
	rows := map[string][]value.Value{}
	for _, row := range res.Rows {
		g, _ := row[0].Str()
		rows[g] = row
	}
	// Group a: one non-null input.
	cnt, _ := rows["a"][1].Int()
	require.EqualValues(t, 1, cnt)
	require.True(t, value.Equal(rows["a"][2], value.NewInt(3)))
	require.True(t, value.Equal(rows["a"][5], value.NewFloat(3)))
	// Group b: all-null input yields Null aggregates and zero count.
	cnt, _ = rows["b"][1].Int()
	require.EqualValues(t, 0, cnt)
	require.True(t, rows["b"][2].IsNull(), "SUM over all-null should be Null")
	require.True(t, rows["b"][3].IsNull(), "MIN over all-null should be Null")
	require.True(t, rows["b"][4].IsNull(), "MAX over all-null should be Null")
}

func TestSumPromotesIntToFloat(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "n", Type: value.Type{Kind: value.KindFloat}},
	})
	require.NoError(t, err)
	ds := dataset.New("mix", schema)
	require.NoError(t, ds.InsertRow([]value.Value{value.NewInt(1)}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewFloat(2.5)}))

	res := run(t, parseSelect(t, "SELECT SUM(n), AVG(n) FROM mix;"), ds)
	require.True(t, value.Equal(res.Rows[0][0], value.NewFloat(3.5)))
	require.True(t, value.Equal(res.Rows[0][1], value.NewFloat(1.75)))
}

func TestOrderAndLimit(t *testing.T) {
	ds := newUsers(t)
	res := run(t, parseSelect(t, "SELECT id FROM u ORDER BY age DESC LIMIT 2;"), ds)
	require.Equal(t, []int64{5, 3}, ids(res, 0))

	// Stable ordering: equal keys keep insertion order.
	res = run(t, parseSelect(t, "SELECT id FROM u ORDER BY age;"), ds)
	require.Equal(t, []int64{1, 2, 4, 3, 5}, ids(res, 0))
}

func TestOrderByAggregate(t *testing.T) {
	ds := newUsers(t)
	res := run(t, parseSelect(t, "SELECT age, COUNT(*) FROM u GROUP BY age ORDER BY COUNT(*) DESC LIMIT 1;"), ds)
	require.Len(t, res.Rows, 1)
	age, _ := res.Rows[0][0].Int()
	require.EqualValues(t, 22, age)
}

func TestNullPredicateExcludesRows(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "id", Type: value.Type{Kind: value.KindInt}},
		{Name: "tag", Type: value.Type{Kind: value.KindString}, Nullable: true},
	})
	require.NoError(t, err)
	ds := dataset.New("n", schema)
	require.NoError(t, ds.InsertRow([]value.Value{value.NewInt(1), value.NewString("x")}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewInt(2), value.Null()}))

	res := run(t, parseSelect(t, "SELECT id FROM n WHERE tag = 'x';"), ds)
	require.Equal(t, []int64{1}, ids(res, 0))

	// The null row is excluded from != too.
	res = run(t, parseSelect(t, "SELECT id FROM n WHERE tag != 'y';"), ds)
	require.Equal(t, []int64{1}, ids(res, 0))
}

func TestProjectionComputesExpressions(t *testing.T) {
	ds := newUsers(t)
	res := run(t, parseSelect(t, "SELECT id * 10 AS tens FROM u WHERE id = 1;"), ds)
	require.Equal(t, []string{"tens"}, res.Columns)
	require.True(t, value.Equal(res.Rows[0][0], value.NewInt(10)))
}

func TestLazyColumnThroughQuery(t *testing.T) {
	schema, err := value.NewSchema([]value.Field{
		{Name: "p", Type: value.Type{Kind: value.KindFloat}},
		{Name: "q", Type: value.Type{Kind: value.KindInt}},
	})
	require.NoError(t, err)
	ds := dataset.New("s", schema)
	require.NoError(t, ds.InsertRow([]value.Value{value.NewFloat(2), value.NewInt(3)}))
	require.NoError(t, ds.InsertRow([]value.Value{value.NewFloat(5), value.NewInt(2)}))
	e, err := parser.ParseExpression("p * q")
	require.NoError(t, err)
	field := value.Field{Name: "total", Type: value.Type{Kind: value.KindFloat}, Nullable: true}
	require.NoError(t, ds.AddComputedColumn(field, dataset.ComputedColumn{Column: "total", Source: "p * q", Expr: e, Lazy: true}, nil))

	sel := parseSelect(t, "SELECT total FROM s;")
	lazyRes := run(t, sel, ds)
	require.NoError(t, ds.Materialize(nil))
	matRes := run(t, sel, ds)
	require.Equal(t, lazyRes.Rows, matRes.Rows)
	f0, _ := lazyRes.Rows[0][0].AsFloat()
	f1, _ := lazyRes.Rows[1][0].AsFloat()
	require.Equal(t, 6.0, f0)
	require.Equal(t, 10.0, f1)
}

func TestDeadlineCancelsExecution(t *testing.T) {
	ds := newUsers(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	sel := parseSelect(t, "SELECT id FROM u;")
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	_, err = plan.Run(NewExecContext(ctx))
	var cancelled *dberr.Cancelled
	require.True(t, errors.As(err, &cancelled), "expected Cancelled, got %v", err)
}

func TestExplainRendersWholeTree(t *testing.T) {
	ds := newUsers(t)
	sel := parseSelect(t, "SELECT age, COUNT(*) FROM u GROUP BY age ORDER BY age LIMIT 3;")
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	explain := plan.Explain()
	for _, part := range []string{"Project(", "Limit(3)", "Order(", "GroupBy(", "Scan(u"} {
		require.Contains(t, explain, part)
	}
}

func TestFilterRejectsNonBooleanPredicate(t *testing.T) {
	ds := newUsers(t)
	sel := parseSelect(t, "SELECT id FROM u WHERE id + 1;")
	plan, err := (&Planner{}).PlanSelect(sel, ds, nil)
	require.NoError(t, err)
	_, err = plan.Run(NewExecContext(context.Background()))
	var te *dberr.TypeError
	require.ErrorAs(t, err, &te)
}

func TestStarProjectionUsesSchemaOrder(t *testing.T) {
	ds := newUsers(t)
	res := run(t, parseSelect(t, "SELECT * FROM u LIMIT 1;"), ds)
	require.Equal(t, []string{"id", "age"}, res.Columns)
}
