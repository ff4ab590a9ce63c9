package parser

import (
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/value"
)

// Command is a parsed statement handed to the engine for dispatch.
type Command interface{ cmdNode() }

// DefineTensor names a tensor in the current database. Kind records the
// declared variant (VECTOR, MATRIX, or generic DEFINE) so the engine can
// check the evaluated rank.
type DefineTensor struct {
	Name string
	Kind value.Kind
	Expr expr.Expr
}

// Let evaluates an expression and binds the result to a name.
type Let struct {
	Name string
	Expr expr.Expr
}

// CreateDataset creates a dataset with a schema.
type CreateDataset struct {
	Name   string
	Fields []value.Field
}

// Insert appends one row to a dataset.
type Insert struct {
	Dataset string
	Values  []expr.Expr
}

// AddColumn adds a computed column. Dataset may be empty, in which case
// the session's current dataset is the target.
type AddColumn struct {
	Dataset string
	Column  string
	Expr    expr.Expr
	Source  string
	Lazy    bool
}

// Materialize converts every lazy column of a dataset.
type Materialize struct {
	Dataset string
}

// SelectItem is one projection expression, or the * shorthand.
type SelectItem struct {
	Expr  expr.Expr
	Alias string
	Star  bool
}

// OrderSpec is the ORDER BY key and direction.
type OrderSpec struct {
	Expr expr.Expr
	Desc bool
}

// Select is a query over one dataset.
type Select struct {
	Items   []SelectItem
	From    string
	Where   expr.Expr
	GroupBy []string
	Having  expr.Expr
	Order   *OrderSpec
	Limit   *int
}

// CreateIndex creates a hash or vector index on one column.
type CreateIndex struct {
	Name    string
	Dataset string
	Column  string
	Vector  bool
	Metric  index.Metric
}

// ShowIndexes lists the indexes of one dataset (or of every dataset when
// Dataset is empty).
type ShowIndexes struct {
	Dataset string
}

// Search is the top-K shorthand: SEARCH ds WHERE col ~= [...] LIMIT k.
type Search struct {
	Dataset string
	Column  string
	Query   expr.Expr
	K       int
}

// Explain wraps a query and returns its plan tree instead of rows.
type Explain struct {
	Stmt Command
	Plan bool
}

// ShowKind selects a SHOW variant.
type ShowKind int

const (
	ShowObject ShowKind = iota
	ShowSchema
	ShowShape
	ShowAll
	ShowDatabases
)

// Show is a structural read-only introspection command.
type Show struct {
	What ShowKind
	Name string
}

// List enumerates datasets or tensors of the current database.
type List struct {
	Datasets bool
}

// Save persists a dataset or tensor through the storage adapter.
type Save struct {
	Tensor bool
	Name   string
}

// Load recovers a dataset or tensor through the storage adapter.
type Load struct {
	Tensor bool
	Name   string
}

// CreateDatabase creates a named database instance.
type CreateDatabase struct{ Name string }

// DropDatabase removes a database instance.
type DropDatabase struct{ Name string }

// DropDataset removes a dataset from the current database.
type DropDataset struct{ Name string }

// DropTensor removes a named tensor from the current database.
type DropTensor struct{ Name string }

// UseDatabase switches the session's current database.
type UseDatabase struct{ Name string }

// SetMetadata stores one extra metadata entry on a dataset.
type SetMetadata struct {
	Dataset string
	Key     string
	Value   expr.Expr
}

func (*DefineTensor) cmdNode()   {}
func (*Let) cmdNode()            {}
func (*CreateDataset) cmdNode()  {}
func (*Insert) cmdNode()         {}
func (*AddColumn) cmdNode()      {}
func (*Materialize) cmdNode()    {}
func (*Select) cmdNode()         {}
func (*CreateIndex) cmdNode()    {}
func (*ShowIndexes) cmdNode()    {}
func (*Search) cmdNode()         {}
func (*Explain) cmdNode()        {}
func (*Show) cmdNode()           {}
func (*List) cmdNode()           {}
func (*Save) cmdNode()           {}
func (*Load) cmdNode()           {}
func (*CreateDatabase) cmdNode() {}
func (*DropDatabase) cmdNode()   {}
func (*DropDataset) cmdNode()    {}
func (*DropTensor) cmdNode()     {}
func (*UseDatabase) cmdNode()    {}
func (*SetMetadata) cmdNode()    {}
