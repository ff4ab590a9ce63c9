package dataset

import (
	"fmt"
	"sort"

	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/value"
)

// ComputedDef is the persistable form of a computed column: the
// expression travels as source text and is re-parsed on restore.
type ComputedDef struct {
	Column string `json:"column"`
	Source string `json:"source"`
	Lazy   bool   `json:"lazy,omitempty"`
}

// DefaultDef is the persistable form of a defaulted column.
type DefaultDef struct {
	Column  string      `json:"column"`
	Default value.Value `json:"default"`
}

// Snapshot is the full persistable state of a dataset; the storage
// adapter round-trips it.
type Snapshot struct {
	Name     string
	Schema   *value.Schema
	Rows     [][]value.Value
	Meta     Metadata
	Computed []ComputedDef
	Defaults []DefaultDef
	Indexes  []index.Definition
}

// ExprParser re-parses stored expression sources during restore.
type ExprParser func(source string) (expr.Expr, error)

// Snapshot captures the dataset for persistence.
func (d *Dataset) Snapshot() *Snapshot {
	snap := &Snapshot{
		Name:   d.Name,
		Schema: d.schema,
		Rows:   d.rows,
		Meta:   d.meta,
	}
	for _, ac := range d.autoCols {
		if ac.computed != nil {
			snap.Computed = append(snap.Computed, ComputedDef{
				Column: ac.computed.Column,
				Source: ac.computed.Source,
				Lazy:   ac.computed.Lazy,
			})
		} else {
			snap.Defaults = append(snap.Defaults, DefaultDef{
				Column:  d.schema.Field(ac.ordinal).Name,
				Default: ac.def,
			})
		}
	}
	for _, ix := range d.sortedIndexes() {
		def := index.Definition{Name: ix.Name(), Kind: ix.Kind(), Column: ix.Columns()[0]}
		if v, ok := ix.(*index.Vector); ok {
			def.Metric = v.Metric()
		}
		snap.Indexes = append(snap.Indexes, def)
	}
	return snap
}

// Restore rebuilds a dataset from a snapshot. Computed-column sources are
// re-parsed with parse, and every persisted index definition is rebuilt
// from the restored rows.
func Restore(snap *Snapshot, parse ExprParser) (*Dataset, error) {
	ds := New(snap.Name, snap.Schema)
	ds.rows = snap.Rows
	ds.meta = snap.Meta

	for _, dd := range snap.Defaults {
		ord, ok := snap.Schema.Index(dd.Column)
		if !ok {
			continue
		}
		ds.autoCols = append(ds.autoCols, autoCol{ordinal: ord, def: dd.Default})
	}
	for _, cd := range snap.Computed {
		ord, ok := snap.Schema.Index(cd.Column)
		if !ok {
			continue
		}
		e, err := parse(cd.Source)
		if err != nil {
			return nil, err
		}
		ds.autoCols = append(ds.autoCols, autoCol{ordinal: ord, computed: &ComputedColumn{
			Column: cd.Column,
			Source: cd.Source,
			Expr:   e,
			Lazy:   cd.Lazy,
		}})
	}
	sort.Slice(ds.autoCols, func(i, j int) bool {
		return ds.autoCols[i].ordinal < ds.autoCols[j].ordinal
	})
	for _, def := range snap.Indexes {
		if _, err := ds.AttachIndex(def); err != nil {
			return nil, err
		}
	}
	// Index reconstruction must not advance the recovered version.
	ds.meta = snap.Meta
	fmt.Sscanf(snap.Meta.Version, "v%d", &ds.revision)
	return ds, nil
}
