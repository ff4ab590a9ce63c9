package dataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/value"
)

// Metadata carries per-dataset bookkeeping. Extra is an untyped
// key-value map owned by the user.
type Metadata struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   string         `json:"version"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// ComputedColumn describes a column defined as name = expr, either
// materialized (values stored, expression re-applied to new inserts) or
// lazy (expression evaluated on every read).
type ComputedColumn struct {
	Column string
	Source string
	Expr   expr.Expr
	Lazy   bool
}

// autoCol is a column the store fills itself on insert: a default value
// or a computed column. Auto columns always sit at the schema tail in
// the order they were added.
type autoCol struct {
	ordinal  int
	def      value.Value
	computed *ComputedColumn
}

// ColumnStats are on-demand summary statistics for one column.
type ColumnStats struct {
	Min       value.Value
	Max       value.Value
	NullCount int
}

// Dataset is a row-addressable table with a schema, metadata, and
// attached indexes. Rows are append-only.
type Dataset struct {
	ID   uuid.UUID
	Name string

	schema   *value.Schema
	rows     [][]value.Value
	meta     Metadata
	revision uint64
	indexes  map[string]index.Index
	autoCols []autoCol
}

// New creates an empty dataset.
func New(name string, schema *value.Schema) *Dataset {
	now := time.Now().UTC()
	return &Dataset{
		ID:     uuid.New(),
		Name:   name,
		schema: schema,
		meta: Metadata{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   "v0",
			Extra:     map[string]any{},
		},
		indexes: map[string]index.Index{},
	}
}

// Schema returns the dataset schema.
func (d *Dataset) Schema() *value.Schema { return d.schema }

// Meta returns the current metadata.
func (d *Dataset) Meta() Metadata { return d.meta }

// RowCount returns the number of stored rows.
func (d *Dataset) RowCount() int { return len(d.rows) }

// Row returns the stored row tuple at id. Callers must not mutate it.
func (d *Dataset) Row(id int) []value.Value { return d.rows[id] }

// Rows returns the stored row tuples. Callers must not mutate them.
func (d *Dataset) Rows() [][]value.Value { return d.rows }

// Computed returns the computed-column descriptor for a column, or nil.
func (d *Dataset) Computed(column string) *ComputedColumn {
	for _, ac := range d.autoCols {
		if ac.computed != nil && ac.computed.Column == column {
			return ac.computed
		}
	}
	return nil
}

// touch refreshes updated_at and bumps the opaque version string.
func (d *Dataset) touch() {
	d.revision++
	d.meta.UpdatedAt = time.Now().UTC()
	d.meta.Version = fmt.Sprintf("v%d", d.revision)
}

// SetMetadata stores one extra metadata entry.
func (d *Dataset) SetMetadata(key string, val any) {
	if d.meta.Extra == nil {
		d.meta.Extra = map[string]any{}
	}
	d.meta.Extra[key] = val
	d.touch()
}

// InsertRow validates a row against the schema, appends it, and notifies
// every attached index. The row may omit auto-filled columns (defaults
// and computed columns), which the store completes itself. If any index
// rejects the row the insertion is rolled back and the dataset is
// unchanged.
func (d *Dataset) InsertRow(row []value.Value) error {
	full, err := d.completeRow(row)
	if err != nil {
		return err
	}
	stored, err := d.validateRow(full)
	if err != nil {
		return err
	}

	rowID := len(d.rows)
	d.rows = append(d.rows, stored)
	var notified []index.Index
	for _, ix := range d.sortedIndexes() {
		if err := ix.OnInsert(stored, rowID); err != nil {
			for _, done := range notified {
				done.Remove(stored, rowID)
			}
			d.rows = d.rows[:rowID]
			return err
		}
		notified = append(notified, ix)
	}
	d.touch()
	return nil
}

// completeRow extends a short row with defaults, lazy placeholders, and
// materialized computed values for the auto-filled tail columns.
func (d *Dataset) completeRow(row []value.Value) ([]value.Value, error) {
	want := d.schema.Len()
	if len(row) == want {
		return row, nil
	}
	if len(row) != want-len(d.autoCols) {
		return nil, &dberr.SchemaViolation{
			Reason: fmt.Sprintf("expected %d or %d values, got %d", want-len(d.autoCols), want, len(row)),
		}
	}
	full := make([]value.Value, len(row), want)
	copy(full, row)
	for _, ac := range d.autoCols {
		switch {
		case ac.computed == nil:
			full = append(full, ac.def)
		case ac.computed.Lazy:
			full = append(full, value.Null())
		default:
			v, err := expr.Eval(ac.computed.Expr, &partialEnv{ds: d, row: full})
			if err != nil {
				return nil, err
			}
			full = append(full, v)
		}
	}
	return full, nil
}

// validateRow applies schema validation, exempting lazy placeholder cells
// from nullability.
func (d *Dataset) validateRow(row []value.Value) ([]value.Value, error) {
	if len(row) != d.schema.Len() {
		return nil, &dberr.SchemaViolation{
			Reason: fmt.Sprintf("expected %d values, got %d", d.schema.Len(), len(row)),
		}
	}
	stored := make([]value.Value, len(row))
	for i, v := range row {
		if v.IsNull() && d.lazyAt(i) {
			stored[i] = v
			continue
		}
		cell, err := d.schema.ValidateCell(i, v)
		if err != nil {
			return nil, err
		}
		stored[i] = cell
	}
	return stored, nil
}

func (d *Dataset) lazyAt(ordinal int) bool {
	for _, ac := range d.autoCols {
		if ac.ordinal == ordinal {
			return ac.computed != nil && ac.computed.Lazy
		}
	}
	return false
}

// AddColumn appends a field filled from a default value. Existing rows
// receive the default (or Null).
func (d *Dataset) AddColumn(field value.Field, def value.Value) error {
	schema, err := d.schema.WithField(field)
	if err != nil {
		return err
	}
	ord := schema.Len() - 1
	if _, err := schema.ValidateCell(ord, def); err != nil {
		return err
	}
	d.schema = schema
	for i := range d.rows {
		d.rows[i] = append(d.rows[i], def)
	}
	d.autoCols = append(d.autoCols, autoCol{ordinal: ord, def: def})
	d.touch()
	return nil
}

// AddComputedColumn appends a column defined by an expression. When lazy,
// only the descriptor is stored and reads evaluate it per row; otherwise
// the expression is evaluated against every existing row immediately, and
// if any row fails the column is not added.
func (d *Dataset) AddComputedColumn(field value.Field, cc ComputedColumn, ambient expr.Env) error {
	schema, err := d.schema.WithField(field)
	if err != nil {
		return err
	}
	ord := schema.Len() - 1

	var filled []value.Value
	if !cc.Lazy {
		filled = make([]value.Value, len(d.rows))
		for i := range d.rows {
			v, err := expr.Eval(cc.Expr, d.RowEnv(i, ambient))
			if err != nil {
				return err
			}
			cell, err := schema.ValidateCell(ord, v)
			if err != nil {
				return err
			}
			filled[i] = cell
		}
	}

	d.schema = schema
	for i := range d.rows {
		if cc.Lazy {
			d.rows[i] = append(d.rows[i], value.Null())
		} else {
			d.rows[i] = append(d.rows[i], filled[i])
		}
	}
	stored := cc
	d.autoCols = append(d.autoCols, autoCol{ordinal: ord, computed: &stored})
	d.touch()
	return nil
}

// Materialize evaluates every lazy column row-by-row and stores the
// results, converting the descriptors to materialized form.
func (d *Dataset) Materialize(ambient expr.Env) error {
	for ai := range d.autoCols {
		ac := &d.autoCols[ai]
		if ac.computed == nil || !ac.computed.Lazy {
			continue
		}
		filled := make([]value.Value, len(d.rows))
		for i := range d.rows {
			v, err := expr.Eval(ac.computed.Expr, d.RowEnv(i, ambient))
			if err != nil {
				return err
			}
			cell, err := d.schema.ValidateCell(ac.ordinal, v)
			if err != nil {
				return err
			}
			filled[i] = cell
		}
		for i := range d.rows {
			d.rows[i][ac.ordinal] = filled[i]
		}
		ac.computed.Lazy = false
	}
	d.touch()
	return nil
}

// Projection resolves column names to ordinals.
func (d *Dataset) Projection(columns []string) ([]int, error) {
	ords := make([]int, len(columns))
	for i, c := range columns {
		ord, ok := d.schema.Index(c)
		if !ok {
			return nil, &dberr.NotFound{Kind: "column", Name: c}
		}
		ords[i] = ord
	}
	return ords, nil
}

// Stats computes column statistics on demand. Min and Max stay Null for
// columns whose values do not order (tensor columns).
func (d *Dataset) Stats(column string) (ColumnStats, error) {
	ord, ok := d.schema.Index(column)
	if !ok {
		return ColumnStats{}, &dberr.NotFound{Kind: "column", Name: column}
	}
	var stats ColumnStats
	for i := range d.rows {
		v := d.rows[i][ord]
		if v.IsNull() {
			stats.NullCount++
			continue
		}
		if v.IsTensor() {
			continue
		}
		if stats.Min.IsNull() {
			stats.Min, stats.Max = v, v
			continue
		}
		if c, err := value.Compare(v, stats.Min); err == nil && c < 0 {
			stats.Min = v
		}
		if c, err := value.Compare(v, stats.Max); err == nil && c > 0 {
			stats.Max = v
		}
	}
	return stats, nil
}

// AttachIndex builds an index over the current rows and attaches it.
func (d *Dataset) AttachIndex(def index.Definition) (index.Index, error) {
	if _, exists := d.indexes[def.Name]; exists {
		return nil, &dberr.AlreadyExists{Kind: "index", Name: def.Name}
	}
	ord, ok := d.schema.Index(def.Column)
	if !ok {
		return nil, &dberr.NotFound{Kind: "column", Name: def.Column}
	}
	ix := index.New(def, ord)
	if err := ix.Build(d.rows); err != nil {
		return nil, err
	}
	d.indexes[def.Name] = ix
	d.touch()
	return ix, nil
}

// Index returns an attached index by name.
func (d *Dataset) Index(name string) (index.Index, bool) {
	ix, ok := d.indexes[name]
	return ix, ok
}

// Indexes returns the attached indexes sorted by name.
func (d *Dataset) Indexes() []index.Index { return d.sortedIndexes() }

// HashIndexOn returns a hash index targeting the column, if any.
func (d *Dataset) HashIndexOn(column string) *index.Hash {
	for _, ix := range d.sortedIndexes() {
		if h, ok := ix.(*index.Hash); ok && h.Columns()[0] == column {
			return h
		}
	}
	return nil
}

// VectorIndexOn returns a vector index targeting the column, if any.
func (d *Dataset) VectorIndexOn(column string) *index.Vector {
	for _, ix := range d.sortedIndexes() {
		if v, ok := ix.(*index.Vector); ok && v.Columns()[0] == column {
			return v
		}
	}
	return nil
}

func (d *Dataset) sortedIndexes() []index.Index {
	names := make([]string, 0, len(d.indexes))
	for n := range d.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]index.Index, len(names))
	for i, n := range names {
		out[i] = d.indexes[n]
	}
	return out
}
